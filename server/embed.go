package server

import "embed"

//go:embed internal
var efs embed.FS
