package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	EnginePath string // overrides [waifu2x_ncnn_vulkan].path
	LogLevel   string
}

// Flag structs decouple cobra from the command logic for testing.

type UpscaleFlags struct {
	Input  string
	Output string
}

type BatchFlags struct {
	InputDir   string
	OutputDir  string
	Jobs       int
	Format     string
	Extensions []string
	Sample     time.Duration
}

type ServeFlags struct {
	Listen   string
	BasePath string
	Router   string
	Sample   time.Duration
}

type ArgsFlags struct {
	Input  string
	Output string
}

type HashPasswordFlags struct {
	Password string
	Cost     int
}

type RemoteFlags struct {
	Server   string
	Username string
	Password string
	Token    string
	CACert   string
	Insecure bool
	Timeout  time.Duration
}

type RemoteSubmitFlags struct {
	Input    string
	Output   string
	Wait     bool
	Interval time.Duration
}

type InitFlags struct {
	Preset  string
	Output  string
	DataDir string
	Force   bool
}
