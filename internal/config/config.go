// Package config defines the configuration surface enumerated in spec.md §6.
package config

// ExceptionABI selects the lowering used by internal/exceptions (spec.md
// §4.7).
type ExceptionABI string

const (
	ABIItanium ExceptionABI = "itanium"
	ABIMSVC    ExceptionABI = "msvc"
)

// NumberPrecision selects the width of the "number" type (spec.md §6).
type NumberPrecision string

const (
	PrecisionF32 NumberPrecision = "f32"
	PrecisionF64 NumberPrecision = "f64"
)

// Options is the plain configuration struct threaded through the core, the
// same unadorned shape as the teacher's BuildConfig (internal/build, now
// retired) -- no flag-parsing library, just a struct a driver fills in from
// whatever front end it's embedded in.
type Options struct {
	// DisableGC: when true, `new` lowers to a plain `new` op; when false,
	// class allocation uses the typed-GC fast path (spec.md §6, §4.5).
	DisableGC bool

	// ExceptionABI chooses the Itanium or MSVC lowering (spec.md §4.7).
	ExceptionABI ExceptionABI

	// AnyAsDefault: when true, a missing parameter/variable type defaults
	// to `any` with a warning; when false the same situation is an error
	// (spec.md §6, §7 "missing-type").
	AnyAsDefault bool

	// NumberPrecision: width of the `number` type (spec.md §6).
	NumberPrecision NumberPrecision

	// EnableRTTI turns on the `.instanceOf` / `Class..rtti` machinery of
	// spec.md §4.5. Left disabled only erases that one concern; `instanceof`
	// against classes without RTTI still resolves statically when possible.
	EnableRTTI bool

	// BuildCacheDSN, when non-empty, is the specialization cache DSN
	// consumed by internal/buildcache (e.g. "sqlite:///tmp/lumac.cache",
	// "postgres://...", "mysql://...", "sqlserver://..."). Empty disables
	// caching and every specialization is recomputed every run.
	BuildCacheDSN string

	// WatchAddr, when non-empty, is the address internal/watchserver binds
	// for the websocket diagnostics stream in watch mode.
	WatchAddr string
}

// Default returns the configuration the driver falls back to when the
// embedding tool supplies none explicitly.
func Default() Options {
	return Options{
		DisableGC:       false,
		ExceptionABI:    ABIItanium,
		AnyAsDefault:    false,
		NumberPrecision: PrecisionF64,
		EnableRTTI:      true,
	}
}
