package config

import "os"

func realEnviron() []string { return os.Environ() }

func realGetenv(key string) string { return os.Getenv(key) }
