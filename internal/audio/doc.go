// Package audio holds generated speech as releasable clips and plays them
// through oto.
package audio
