package main

import "time"

// Flag structs decouple cobra from logic for testing.

type GlobalFlags struct {
	ConfigPath string
}

type ServeFlags struct {
	ConfigPath   string
	Daemonize    bool
	PidFile      string
	LogFile      string
	DrainTimeout time.Duration
}

type RestartFlags struct {
	Socket  string
	Timeout time.Duration
}

type StatusFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Token      string
}

type HistoryFlags struct {
	ConfigPath string
	DSN        string
	Limit      int
	APIUrl     string
	APITimeout time.Duration
	Token      string
}

type TemplateCreateFlags struct {
	Type   string
	Name   string
	Output string
	Force  bool
}

type HashTokenFlags struct {
	Token string
}
