package domain

import "fmt"

// VoiceField names one toggle of a participant's voice state.
type VoiceField string

const (
	FieldMuted         VoiceField = "muted"
	FieldDeafened      VoiceField = "deafened"
	FieldCamera        VoiceField = "camera"
	FieldScreenSharing VoiceField = "screenSharing"
)

func ParseVoiceField(s string) (VoiceField, error) {
	switch f := VoiceField(s); f {
	case FieldMuted, FieldDeafened, FieldCamera, FieldScreenSharing:
		return f, nil
	default:
		return "", fmt.Errorf("unknown voice field %q", s)
	}
}

// PreJoin reports whether the field may be declared before joining a room.
func (f VoiceField) PreJoin() bool {
	return f == FieldMuted || f == FieldDeafened
}

// VoiceState is the per (session, room) participant record.
// No transport or lifecycle logic here.
type VoiceState struct {
	Muted         bool `json:"muted"`
	Deafened      bool `json:"deafened"`
	Camera        bool `json:"camera"`
	ScreenSharing bool `json:"screenSharing"`
}

func (s *VoiceState) Set(f VoiceField, v bool) {
	switch f {
	case FieldMuted:
		s.Muted = v
	case FieldDeafened:
		s.Deafened = v
	case FieldCamera:
		s.Camera = v
	case FieldScreenSharing:
		s.ScreenSharing = v
	}
}

func (s VoiceState) Get(f VoiceField) bool {
	switch f {
	case FieldMuted:
		return s.Muted
	case FieldDeafened:
		return s.Deafened
	case FieldCamera:
		return s.Camera
	case FieldScreenSharing:
		return s.ScreenSharing
	}
	return false
}

// Enabled lists the fields currently switched on, in a stable order.
func (s VoiceState) Enabled() []VoiceField {
	var out []VoiceField
	for _, f := range []VoiceField{FieldMuted, FieldDeafened, FieldCamera, FieldScreenSharing} {
		if s.Get(f) {
			out = append(out, f)
		}
	}
	return out
}
