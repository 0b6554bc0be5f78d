// Package config defines configuration for the datt CLI.
//
// Configuration is layered, later sources winning:
//   - Defaults ([Default])
//   - YAML configuration file ([LoadFromFile])
//   - Environment variables with the DATT_ prefix ([Config.LoadFromEnv])
//   - Command-line flags, applied with [Config.Merge]
//
// # File Format
//
//	url: https://cdn.example.com/hls/abc
//	output: episode.mp4
//	work_dir: .temp
//	chunk_size: 10
//	parallel: 30
//	formats: [html, js, css, txt, png, webp, ico, jpg]
//	name_template: "seg-{index}-v1-a1.{format}"
//	retry:
//	  attempts: 2
//	  backoff: 500ms
//	  max_backoff: 5s
package config
