// Package transcoder converts QuickTime movies to browser-playable MP4 using
// FFmpeg.
//
// Each file is first re-encoded to H.264/AAC. When that attempt exits with an
// error, a second attempt copies the video stream untouched and re-encodes only
// the audio. A partial output left behind by a failed attempt is removed.
//
// FFmpeg is run as an external process through the Runner interface so tests
// can substitute a scripted runner. Progress is parsed from the "time=" field
// of FFmpeg's stderr.
package transcoder
