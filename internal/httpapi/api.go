package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuqie6/drivestats/internal/bootstrap"
	"github.com/yuqie6/drivestats/internal/dto"
	"github.com/yuqie6/drivestats/internal/eventbus"
	"github.com/yuqie6/drivestats/internal/pkg/buildinfo"
	"github.com/yuqie6/drivestats/internal/repository"
	"github.com/yuqie6/drivestats/internal/service"
)

type apiServer struct {
	core      *bootstrap.Core
	hub       *eventbus.Hub
	startTime time.Time
}

func newAPI(core *bootstrap.Core) *apiServer {
	if core.Hub == nil {
		core.Hub = eventbus.NewHub()
	}
	return &apiServer{core: core, hub: core.Hub, startTime: time.Now()}
}

func (a *apiServer) registerDriveRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/drive/add", a.guard(a.addDrive))
	mux.HandleFunc("GET /api/drive/pieces", a.guard(a.listDrives))
	mux.HandleFunc("GET /api/drive/pieces/{id}", a.guard(a.getDrive))
	mux.HandleFunc("PUT /api/drive/pieces/{id}", a.guard(a.updateDrive))
	mux.HandleFunc("DELETE /api/drive/pieces/{id}", a.guard(a.deleteDrive))
	mux.HandleFunc("POST /api/drive/pieces/{id}/upgrade", a.guard(a.upgradeDrive))
	mux.HandleFunc("POST /api/drive/pieces/{id}/downgrade", a.guard(a.downgradeDrive))

	mux.HandleFunc("GET /api/drive/set-types", a.guard(a.listSetTypes))
	mux.HandleFunc("GET /api/drive/stat-types", a.guard(a.listStatTypes))

	mux.HandleFunc("GET /api/drive/stats", a.guard(a.getStats))
	mux.HandleFunc("POST /api/drive/stats/pairing", a.guard(a.getPairing))
}

// guard 安全模式下拒绝业务请求，/health 与 /api/status 仍可访问
func (a *apiServer) guard(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.core == nil || a.core.DB == nil {
			writeError(w, http.StatusServiceUnavailable, "服务未初始化，请检查配置与数据库")
			return
		}
		if a.core.DB.SafeMode {
			writeError(w, http.StatusServiceUnavailable, "数据库处于安全模式: "+a.core.DB.MigrationError)
			return
		}
		fn(w, r)
	}
}

// ========== handlers ==========

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"name":       a.core.Cfg.App.Name,
		"version":    a.core.Cfg.App.Version,
		"started_at": a.startTime.Format(time.RFC3339),
	})
}

func (a *apiServer) getStatus(w http.ResponseWriter, r *http.Request) {
	out := dto.StatusDTO{
		App: dto.AppStatusDTO{
			Name:       a.core.Cfg.App.Name,
			Version:    a.core.Cfg.App.Version,
			Commit:     buildinfo.Commit,
			StartedAt:  a.startTime.Format(time.RFC3339),
			UptimeSec:  int64(time.Since(a.startTime).Seconds()),
			ConfigPath: a.core.Cfg.Path(),
		},
		Storage: dto.StorageStatusDTO{DSN: repository.RedactDSN(a.core.Cfg.DatabaseDSN())},
		Tables:  []dto.TableStatusDTO{},
	}
	if db := a.core.DB; db != nil {
		out.App.SafeMode = db.SafeMode
		out.Storage.Dialect = db.Dialect
		out.Storage.SchemaVersion = db.SchemaVersion
		out.Storage.SafeModeReason = db.MigrationError
		for _, t := range db.CheckTables(r.Context()) {
			out.Tables = append(out.Tables, dto.TableStatusDTO{Name: t.Name, Exists: t.Exists})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *apiServer) addDrive(w http.ResponseWriter, r *http.Request) {
	var req dto.AddDriveRequest
	if err := readJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if field := missingAddField(req); field != "" {
		writeError(w, http.StatusBadRequest, "缺少必填字段: "+field)
		return
	}

	detail, err := a.core.Services.Pieces.Create(r.Context(), service.CreatePieceInput{
		SetName:      req.SetName,
		Position:     *req.Position,
		MainStatName: req.MainStatName,
		SubstatNames: req.Substats,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	a.hub.Publish(eventbus.DriveChanged(eventbus.ActionCreated, detail.ID))
	drive := toDriveDTO(detail)
	writeJSON(w, http.StatusCreated, dto.AddDriveResponse{
		DriveID: detail.ID,
		Message: "驱动盘添加成功",
		Drive:   &drive,
	})
}

func missingAddField(req dto.AddDriveRequest) string {
	switch {
	case strings.TrimSpace(req.SetName) == "":
		return "set_name"
	case req.Position == nil:
		return "position"
	case strings.TrimSpace(req.MainStatName) == "":
		return "main_stat_name"
	case req.Substats == nil:
		return "substats"
	}
	return ""
}

func (a *apiServer) listDrives(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", service.DefaultPage)
	perPage := queryInt(r, "per_page", service.DefaultPerPage)

	list, err := a.core.Services.Pieces.List(r.Context(), page, perPage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	drives := make([]dto.DriveDTO, 0, len(list.Items))
	for i := range list.Items {
		drives = append(drives, toDriveDTO(&list.Items[i]))
	}
	p := list.Pagination
	writeJSON(w, http.StatusOK, dto.DriveListDTO{
		Drives: drives,
		Pagination: dto.PaginationDTO{
			CurrentPage: p.CurrentPage,
			PerPage:     p.PerPage,
			TotalItems:  p.TotalItems,
			TotalPages:  p.TotalPages,
			HasNext:     p.HasNext,
			HasPrev:     p.HasPrev,
		},
	})
}

func (a *apiServer) getDrive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := a.core.Services.Pieces.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDriveDTO(detail))
}

func (a *apiServer) updateDrive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.UpdateDriveRequest
	if err := readJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	err := a.core.Services.Pieces.Update(r.Context(), id, service.UpdatePieceInput{
		MainStatName: req.MainStatName,
		SubstatNames: req.Substats,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.hub.Publish(eventbus.DriveChanged(eventbus.ActionUpdated, id))
	writeJSON(w, http.StatusOK, dto.MessageDTO{Message: "驱动盘更新成功"})
}

func (a *apiServer) deleteDrive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := a.core.Services.Pieces.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.hub.Publish(eventbus.DriveChanged(eventbus.ActionDeleted, id))
	writeJSON(w, http.StatusOK, dto.MessageDTO{Message: "驱动盘删除成功"})
}

func (a *apiServer) upgradeDrive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.UpgradeRequest
	if err := readJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := a.core.Services.Upgrades.Upgrade(r.Context(), id, service.UpgradeInput{
		Mode:           service.UpgradeMode(strings.TrimSpace(req.UpgradeType)),
		SubstatID:      req.SubstatID,
		NewSubstatName: req.NewSubstatName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	a.hub.Publish(eventbus.DriveChanged(eventbus.ActionUpgraded, id))
	count := res.UpgradeCount
	result := dto.UpgradeResultDTO{Type: dto.ResultUpgradeExisting, SubstatName: res.StatName, NewUpgradeCount: &count}
	if res.Grew {
		result = dto.UpgradeResultDTO{Type: dto.ResultNewSubstat, NewSubstat: res.StatName, UpgradeCount: &count}
	}
	writeJSON(w, http.StatusOK, dto.UpgradeResponse{
		Message:          "强化成功",
		Result:           result,
		NewTotalUpgrades: res.TotalUpgrades,
	})
}

func (a *apiServer) downgradeDrive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req dto.DowngradeRequest
	if err := readJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	res, err := a.core.Services.Upgrades.Downgrade(r.Context(), id, req.SubstatID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	a.hub.Publish(eventbus.DriveChanged(eventbus.ActionDowngraded, id))
	count := res.UpgradeCount
	writeJSON(w, http.StatusOK, dto.UpgradeResponse{
		Message:          "降级成功",
		Result:           dto.UpgradeResultDTO{Type: dto.ResultDowngrade, SubstatName: res.StatName, NewUpgradeCount: &count},
		NewTotalUpgrades: res.TotalUpgrades,
	})
}

func (a *apiServer) listSetTypes(w http.ResponseWriter, r *http.Request) {
	names, err := a.core.Services.Catalog.SetTypeNames(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (a *apiServer) listStatTypes(w http.ResponseWriter, r *http.Request) {
	names, err := a.core.Services.Catalog.StatTypeNames(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (a *apiServer) getStats(w http.ResponseWriter, r *http.Request) {
	report, err := a.core.Services.Stats.Aggregate(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *apiServer) getPairing(w http.ResponseWriter, r *http.Request) {
	var req dto.PairingRequest
	if err := readJSON(r, &req); err != nil || req.SelectedStats == nil {
		writeError(w, http.StatusBadRequest, "请求参数错误")
		return
	}
	report, err := a.core.Services.Stats.Pairing(r.Context(), req.SelectedStats)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSSE 推送驱动盘变更事件，前端据此刷新列表与统计
func (a *apiServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	sub := a.hub.Subscribe(ctx, 32)

	writeSSE(w, eventbus.Event{Type: eventbus.TypeReady, Timestamp: time.Now().UnixMilli()})
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(w, ": ping\n\n")
			flusher.Flush()
		case evt, ok := <-sub:
			if !ok {
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, evt eventbus.Event) {
	b, _ := json.Marshal(evt)
	_, _ = io.WriteString(w, "event: "+sanitizeSSEName(evt.Type)+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = w.Write(b)
	_, _ = io.WriteString(w, "\n\n")
}

func sanitizeSSEName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return "message"
	}
	n = strings.ReplaceAll(n, "\n", "")
	n = strings.ReplaceAll(n, "\r", "")
	return n
}

// ========== helpers ==========

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseInt64Param(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "驱动盘ID无效")
		return 0, false
	}
	return id, true
}

func toDriveDTO(d *service.PieceDetail) dto.DriveDTO {
	levels := make([]dto.SubstatLevelDTO, 0, len(d.Affixes))
	for _, a := range d.Affixes {
		levels = append(levels, dto.SubstatLevelDTO{
			Name:         a.Name,
			UpgradeCount: a.UpgradeCount,
			IsOriginal:   a.IsOriginal,
			SubstatID:    a.SubstatID,
		})
	}
	return dto.DriveDTO{
		DriveID:            d.ID,
		SetName:            d.SetName,
		Position:           d.Position,
		MainStatName:       d.MainStatName,
		MainStatLevel:      d.MainStatLevel,
		TotalUpgrades:      d.TotalUpgrades,
		Substats:           d.SubstatNames(),
		SubstatsWithLevels: levels,
		CreatedAt:          formatTime(d.CreatedAt),
		UpdatedAt:          formatTime(d.UpdatedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
