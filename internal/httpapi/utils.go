package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuqie6/drivestats/internal/service"
)

// errEmptyBody 请求体为空
var errEmptyBody = errors.New("请求数据不能为空")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeServiceError 按错误类型映射状态码
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, service.Message(err))
	case service.IsValidation(err):
		writeError(w, http.StatusBadRequest, service.Message(err))
	default:
		slog.Error("请求处理失败", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, service.Message(err))
	}
}

func readJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("请求参数错误: %w", err)
	}
	return nil
}

// writeDecodeError 请求体解析失败
func writeDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, errEmptyBody.Error())
		return
	}
	writeError(w, http.StatusBadRequest, "请求参数错误")
}

func parseInt64Param(value string) (int64, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, fmt.Errorf("参数为空")
	}
	return strconv.ParseInt(v, 10, 64)
}

// queryInt 读取整数查询参数，缺失或非法时返回 def
func queryInt(r *http.Request, key string, def int) int {
	s := strings.TrimSpace(r.URL.Query().Get(key))
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
