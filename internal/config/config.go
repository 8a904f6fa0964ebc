package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Backend selects where taxonomy, questions and images live.
type Backend string

const (
	BackendLocal  Backend = "local"  // sql + filesystem blobs in this process
	BackendRemote Backend = "remote" // question-bank REST backend
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobBasePath string
	// AssetsBaseURL prefixes uploaded image keys, e.g. PUBLIC_URL + "/assets".
	AssetsBaseURL string

	Backend             Backend
	BackendURL          string
	BackendTokenURL     string
	BackendClientID     string
	BackendClientSecret string

	UncategorizedName string
	UploadMaxRetries  int
	ImportSheet       string // worksheet name; empty = first sheet

	EnableLocalAuth bool
	AuthSecret      string
	AdminUser       string
	AdminPassHash   string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	LogLevel  string
	LogFormat string
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	pub := os.Getenv("PUBLIC_URL")
	return Config{
		Mode:                mode,
		HTTPAddr:            addr,
		PublicURL:           pub,
		DBDriver:            envOr("DB_DRIVER", "sqlite"),
		DBDSN:               envOr("DB_DSN", ""),
		BlobBasePath:        envOr("BLOB_BASE_PATH", "./data"),
		AssetsBaseURL:       envOr("ASSETS_BASE_URL", strings.TrimSuffix(pub, "/")+"/assets"),
		Backend:             Backend(envOr("BACKEND", string(BackendLocal))),
		BackendURL:          os.Getenv("BACKEND_URL"),
		BackendTokenURL:     os.Getenv("BACKEND_TOKEN_URL"),
		BackendClientID:     os.Getenv("BACKEND_CLIENT_ID"),
		BackendClientSecret: os.Getenv("BACKEND_CLIENT_SECRET"),
		UncategorizedName:   envOr("UNCATEGORIZED_NAME", DefaultUncategorizedName),
		UploadMaxRetries:    envInt("UPLOAD_MAX_RETRIES", 2),
		ImportSheet:         os.Getenv("IMPORT_SHEET"),
		EnableLocalAuth:     envBool("ENABLE_LOCAL_AUTH", true),
		AuthSecret:          envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		AdminUser:           envOr("ADMIN_USER", "admin"),
		AdminPassHash:       envOr("ADMIN_PASS_HASH", "$2y$12$pyZAiWaTfVtM7UElIRStvOC3gNbnp70nmQU4eYopLGBfCJr1DOvji"),
		CORSOriginsOnline:   csvOr("CORS_ORIGINS_ONLINE", "https://papermaker.example.com"),
		CORSOriginsOffline:  csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "text"),
	}
}

const DefaultUncategorizedName = "未分类"

// FromViper builds a Config from a viper instance (flags, config file and
// QBIMPORT_* environment). Keys mirror the env names in lower case.
func FromViper(v *viper.Viper) Config {
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("blob_base_path", "./data")
	v.SetDefault("backend", string(BackendLocal))
	v.SetDefault("uncategorized_name", DefaultUncategorizedName)
	v.SetDefault("upload_max_retries", 2)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	assets := v.GetString("assets_base_url")
	if assets == "" {
		assets = strings.TrimSuffix(v.GetString("public_url"), "/") + "/assets"
	}
	return Config{
		Mode:                ModeOffline,
		PublicURL:           v.GetString("public_url"),
		DBDriver:            v.GetString("db_driver"),
		DBDSN:               v.GetString("db_dsn"),
		BlobBasePath:        v.GetString("blob_base_path"),
		AssetsBaseURL:       assets,
		Backend:             Backend(v.GetString("backend")),
		BackendURL:          v.GetString("backend_url"),
		BackendTokenURL:     v.GetString("backend_token_url"),
		BackendClientID:     v.GetString("backend_client_id"),
		BackendClientSecret: v.GetString("backend_client_secret"),
		UncategorizedName:   v.GetString("uncategorized_name"),
		UploadMaxRetries:    v.GetInt("upload_max_retries"),
		ImportSheet:         v.GetString("import_sheet"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return def
	}
	return n
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
