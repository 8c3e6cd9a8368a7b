package api

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"InsightAgent/internal/agent"
	"InsightAgent/internal/dataset"
	xerrors "InsightAgent/internal/errors"
	"InsightAgent/internal/observability/metrics"
)

// maxUploadBytes 限制上传 CSV 的内存占用。
const maxUploadBytes = 32 << 20

// Server 负责暴露 REST 接口，供外部驱动智能体执行。
type Server struct {
	addr        string
	agent       *agent.Agent
	corsOrigins []string
}

// NewServer 构造 API 服务实例。origins 为空时允许所有来源。
func NewServer(addr string, ag *agent.Agent, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{addr: addr, agent: ag, corsOrigins: origins}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 构造完整的路由。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.instrument("health", s.handleHealth))
	mux.HandleFunc("/api/v1/runs", s.instrument("runs", s.handleRuns))
	mux.Handle("/metrics", metrics.Handler())
	return s.withCORS(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "InsightAgent backend is running",
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

// handleCreateRun 处理一次同步运行请求：task 表单字段 + 可选的 file 文件。
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}

	task, table, err := parseRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.agent.Execute(r.Context(), agent.RunRequest{Task: task, Table: table})
	if err != nil {
		status := http.StatusInternalServerError
		if xerrors.CodeOf(err) == xerrors.CodeInvalidArgument {
			status = http.StatusBadRequest
		}
		metrics.ObserveRun("", "failed")
		writeError(w, status, err)
		return
	}

	metrics.ObserveRun(result.PlanSource, "succeeded")
	writeJSON(w, http.StatusOK, result)
}

// parseRunRequest 同时支持 multipart 上传与普通表单。
func parseRunRequest(r *http.Request) (string, *dataset.Table, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 multipart 请求失败")
		}
	} else if err := r.ParseForm(); err != nil {
		return "", nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析表单失败")
	}

	task := strings.TrimSpace(r.FormValue("task"))
	if task == "" {
		return "", nil, xerrors.New(xerrors.CodeInvalidArgument, "task 字段不能为空")
	}

	var table *dataset.Table
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		switch {
		case errors.Is(err, http.ErrMissingFile):
			// 未上传文件是合法请求。
		case err != nil:
			return "", nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "读取上传文件失败")
		default:
			defer file.Close()
			parsed, parseErr := dataset.Parse(header.Filename, file)
			if parseErr != nil {
				return "", nil, xerrors.Wrap(xerrors.CodeDatasetParse, parseErr, "上传的 CSV 无法解析")
			}
			table = parsed
		}
	}
	return task, table, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.New(xerrors.CodeInitializationFailure, "Agent 未初始化"))
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	results, err := s.agent.ListHistory(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// withCORS 处理跨域请求与 OPTIONS 预检。
func (s *Server) withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			allowed := origin
			if len(s.corsOrigins) == 1 && s.corsOrigins[0] == "*" {
				allowed = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "*")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// instrument 记录每个接口的请求量与耗时指标。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// statusRecorder 捕获响应状态码以便上报指标。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 以 JSON 形式返回统一错误码与消息。
func writeError(w http.ResponseWriter, status int, err error) {
	payload := map[string]string{
		"code":    string(xerrors.CodeOf(err)),
		"message": err.Error(),
	}
	writeJSON(w, status, payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
