// Package manifest builds and writes media-manifest.json, the descriptor array
// the gallery front-end reads.
//
// Entries keep directory listing order. The file is replaced atomically so a
// reader never sees a partial manifest.
package manifest
