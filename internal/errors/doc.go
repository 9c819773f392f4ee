// Package errors provides coded, actionable errors for the replay CLI and
// its configuration.
//
// Every code maps to a category, a short message and a detailed
// explanation. Callers add what they know:
//
//	err := errors.New("E201").
//	    WithLocation("replay.yaml", 4, 0).
//	    WithSuggestion("Durations use Go syntax, for example \"30s\"")
//
//	errors.Print(os.Stderr, err)
//	// ERROR E201: Invalid configuration file
//	//
//	//   replay.yaml:4
//	//
//	//       3 │ server:
//	//   →   4 │   readTimeout: soon
//	//       5 │   maxPages: 100
//	//
//	//   Hint: Durations use Go syntax, for example "30s"
//
// Codes live in the E2xx range: E200-E219 configuration, E220-E239 server,
// E240-E259 journal storage, E260-E279 command line.
package errors
