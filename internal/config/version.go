package config

// Version is the mua binary version.
// Set at build time via: -ldflags "-X github.com/muahq/mua/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
