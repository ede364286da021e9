package dto

type StatusDTO struct {
	App     AppStatusDTO     `json:"app"`
	Storage StorageStatusDTO `json:"storage"`
	Tables  []TableStatusDTO `json:"tables"`
}

type AppStatusDTO struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Commit     string `json:"commit,omitempty"`
	StartedAt  string `json:"started_at"`
	UptimeSec  int64  `json:"uptime_sec"`
	SafeMode   bool   `json:"safe_mode"`
	ConfigPath string `json:"config_path,omitempty"`
}

type StorageStatusDTO struct {
	Dialect        string `json:"dialect"`
	DSN            string `json:"dsn"` // 已去除口令
	SchemaVersion  int    `json:"schema_version"`
	SafeModeReason string `json:"safe_mode_reason,omitempty"`
}

type TableStatusDTO struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}
