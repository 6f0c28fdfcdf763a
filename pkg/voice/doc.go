// Package voice runs one conversational turn: a finished transcript goes
// through reply generation, disfluency rewriting and speech synthesis, in
// that order, each stage under its own timeout.
//
// Usage:
//
//	p, err := voice.New(responder, rewriter, synth,
//	    voice.WithStageTimeouts(30*time.Second, 30*time.Second, 60*time.Second),
//	)
//	turn, err := p.ProcessTurn(ctx, voice.Transcript{SessionID: id, Text: text})
//	// turn.Audio holds the reply audio
//
// A failed rewrite is not fatal: the turn continues with the plain reply.
// A failed generation or synthesis ends the turn with a *StageError.
package voice
