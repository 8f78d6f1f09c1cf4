package store

import (
	"fmt"

	"github.com/dkeye/parley/internal/core"
)

var ErrChannelExists = fmt.Errorf("channel %w", core.ErrExists)
