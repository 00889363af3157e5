package config

// Lua schema field names and globals
const (
	luaGlobal = "storeagent"

	luaFieldCacheDir = "cache_dir"
	luaFieldListing  = "listing"
	luaFieldFetch    = "fetch"
	luaFieldDeploy   = "deploy"
	luaFieldTrust    = "trust"
	luaFieldSelect   = "select"
	luaFieldOutput   = "output"

	luaFieldEndpoint      = "endpoint"
	luaFieldRing          = "ring"
	luaFieldUserAgent     = "user_agent"
	luaFieldTimeout       = "timeout"
	luaFieldRetries       = "retries"
	luaFieldMaxBytes      = "max_bytes"
	luaFieldBackend       = "backend"
	luaFieldUser          = "user"
	luaFieldStore         = "store"
	luaFieldDir           = "dir"
	luaFieldUserStore     = "user_store"
	luaFieldPreferredArch = "preferred_arch"
	luaFieldPath          = "path"
	luaFieldFormat        = "format"
)

// Backend names.
const (
	DeployPowerShell     = "powershell"
	DeployPowerShellCore = "pwsh"
	TrustCertutil        = "certutil"
	TrustDir             = "dir"
	ArchAuto             = "auto"
)

const (
	// FileName is the config file looked up in the config directory.
	FileName = "storeagent.lua"
	// MaxFileSize caps the config file size.
	MaxFileSize = 1 << 20
	// MaxRetries caps fetch.retries.
	MaxRetries = 10
)
