package config

import "time"

const (
	// Rooms
	DefaultMaxGroupSize = 50

	// History
	DefaultPageSize = 50
	MaxPageSize     = 100

	// WebSocket
	WriteWait       = 10 * time.Second
	PongWait        = 60 * time.Second
	PingPeriod      = (PongWait * 9) / 10
	MaxFrameSize    = 64 * 1024
	SendBufferSize  = 256
	DefaultWSRate   = 20
	DefaultWSBurst  = 40
	ShutdownTimeout = 10 * time.Second

	// Broker
	FanoutChannel = "chat:fanout"
)
