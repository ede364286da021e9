package dto

// 注意：本包用于承载“对外契约”的 DTO（与前端/HTTP API 保持稳定）。
// 不要在这里放 GORM/持久化细节；内部持久化 schema 请见 internal/schema；业务逻辑收敛在 internal/service。

// ========== 请求 ==========

type AddDriveRequest struct {
	SetName      string   `json:"set_name"`
	Position     *int     `json:"position"`
	MainStatName string   `json:"main_stat_name"`
	Substats     []string `json:"substats"`
}

// UpdateDriveRequest 字段为空表示不修改
type UpdateDriveRequest struct {
	MainStatName *string  `json:"main_stat_name,omitempty"`
	Substats     []string `json:"substats,omitempty"`
}

type UpgradeRequest struct {
	UpgradeType    string `json:"upgrade_type"`
	SubstatID      int64  `json:"substat_id,omitempty"`
	NewSubstatName string `json:"new_substat_name,omitempty"`
}

type DowngradeRequest struct {
	SubstatID int64 `json:"substat_id"`
}

type PairingRequest struct {
	SelectedStats []string `json:"selected_stats"`
}

// ========== 响应 ==========

type SubstatLevelDTO struct {
	Name         string `json:"name"`
	UpgradeCount int    `json:"upgrade_count"`
	IsOriginal   bool   `json:"is_original"`
	SubstatID    int64  `json:"substat_id"`
}

type DriveDTO struct {
	DriveID            int64             `json:"drive_id"`
	SetName            string            `json:"set_name"`
	Position           int               `json:"position"`
	MainStatName       string            `json:"main_stat_name"`
	MainStatLevel      int               `json:"main_stat_level"`
	TotalUpgrades      int               `json:"total_upgrades"`
	Substats           []string          `json:"substats"`
	SubstatsWithLevels []SubstatLevelDTO `json:"substats_with_levels"`
	CreatedAt          string            `json:"created_at"`
	UpdatedAt          string            `json:"updated_at"`
}

type AddDriveResponse struct {
	DriveID int64     `json:"drive_id"`
	Message string    `json:"message"`
	Drive   *DriveDTO `json:"drive"`
}

type PaginationDTO struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrev     bool  `json:"has_prev"`
}

type DriveListDTO struct {
	Drives     []DriveDTO    `json:"drives"`
	Pagination PaginationDTO `json:"pagination"`
}

type MessageDTO struct {
	Message string `json:"message"`
}

// UpgradeResultDTO 强化/降级结果，按 type 区分字段
// new_substat: new_substat + upgrade_count
// upgrade_existing / downgrade: substat_name + new_upgrade_count
type UpgradeResultDTO struct {
	Type            string `json:"type"`
	NewSubstat      string `json:"new_substat,omitempty"`
	UpgradeCount    *int   `json:"upgrade_count,omitempty"`
	SubstatName     string `json:"substat_name,omitempty"`
	NewUpgradeCount *int   `json:"new_upgrade_count,omitempty"`
}

type UpgradeResponse struct {
	Message          string           `json:"message"`
	Result           UpgradeResultDTO `json:"result"`
	NewTotalUpgrades int              `json:"new_total_upgrades"`
}

const (
	ResultNewSubstat      = "new_substat"
	ResultUpgradeExisting = "upgrade_existing"
	ResultDowngrade       = "downgrade"
)
