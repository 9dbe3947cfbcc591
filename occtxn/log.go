package occtxn

import "go.uber.org/zap"

// nopLogger is used when a caller doesn't supply one: the library stays
// silent by default, mirroring the source's DEBUG-gated VERBOSE macros.
func nopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
