// Package config loads the replay server configuration.
//
// The configuration lives in replay.yaml (or replay.yml, or replay.json) in
// the working directory. Every field is optional:
//
//	server:
//	  address: ":8080"
//	  readTimeout: 60s
//	  writeTimeout: 10s
//	  maxMessageSize: 65536
//	  maxPages: 1000
//	  eventQueueSize: 64
//	replay:
//	  namespace: vg
//	  resolution: verified
//	journal:
//	  sink: s3
//	  bucket: replay-journals
//	  prefix: journals/
//	  region: eu-west-1
//	telemetry:
//	  namespace: replay
//	  tracer: replay
//	log:
//	  level: info
//	  format: json
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    errors.Print(os.Stderr, err)
//	    os.Exit(1)
//	}
package config
