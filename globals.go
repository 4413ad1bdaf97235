package main

import (
	"log"
	"sync"

	"golang.org/x/time/rate"
)

// --- Configuration ---
const (
	AppName    = "queueforge"
	AppVersion = "1.0.0"
)

var (
	// Infrastructure
	InfoLog  *log.Logger
	ErrorLog *log.Logger

	// Rate Limiting
	ipLimiters = make(map[string]*rate.Limiter)
	ipLock     sync.Mutex
	limitRate  rate.Limit = 10
	limitBurst            = 20
)
