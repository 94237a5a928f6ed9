// 包 api：要素服务 HTTP 路由；独立 ServeMux 便于在主入口挂载到 /api 前缀
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cdb-features/internal/blacklist"
	"cdb-features/internal/cdb/source"
	"cdb-features/internal/cdb/tile"
	"cdb-features/internal/feature"
	"cdb-features/internal/logger"
	"cdb-features/internal/middleware"
	"cdb-features/internal/plugins"
	"cdb-features/internal/replace"
	"cdb-features/internal/session"
)

// Deps：路由依赖
type Deps struct {
	Sessions   *session.Holder
	Source     *source.Source
	Queue      *replace.Queue
	Retired    *replace.RetiredMap
	Draw       *feature.DrawIndex
	Drivers    *plugins.Manager
	AdminToken string
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func parseExtent(r *http.Request) (tile.Extent, error) {
	q := r.URL.Query()
	var v [4]float64
	for i, k := range []string{"north", "south", "east", "west"} {
		f, err := strconv.ParseFloat(q.Get(k), 64)
		if err != nil {
			return tile.Extent{}, errors.New("invalid " + k)
		}
		v[i] = f
	}
	e := tile.Extent{North: v[0], South: v[1], East: v[2], West: v[3]}
	if e.North <= e.South || e.East <= e.West {
		return tile.Extent{}, errors.New("empty extent")
	}
	return e, nil
}

// BuildRoutes：构建 API 路由
func BuildRoutes(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// 要素查询：缺失、黑名单与配置问题都返回空集合，由 x-cdb-status 说明原因
	mux.HandleFunc("/features", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		e, err := parseExtent(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		sess := d.Sessions.Current()
		res, err := d.Source.Features(r.Context(), sess, e)
		switch {
		case err == nil:
			w.Header().Set("x-cdb-status", "ok")
		case errors.Is(err, source.ErrNotFound):
			w.Header().Set("x-cdb-status", "not_found")
		case errors.Is(err, source.ErrConfiguration):
			w.Header().Set("x-cdb-status", "configuration")
			logger.L().Warn("features_configuration", "err", err)
		default:
			logger.L().Error("features_error", "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		w.Header().Set("x-cdb-tile", res.Tile)
		w.Header().Set("x-cdb-lod", strconv.Itoa(res.LOD))
		w.Header().Set("content-type", "application/geo+json")
		w.Header().Set("cache-control", "no-store")
		b, err := res.Collection().MarshalJSON()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(b)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		sess := d.Sessions.Current()
		out := map[string]any{
			"session": sess.Stats(sess.Blacklist.Len(r.Context())),
			"profile": d.Source.Profile(),
		}
		if d.Queue != nil {
			out["pending_replacements"] = d.Queue.Len()
			if b, ok := d.Queue.Peek(); ok {
				out["oldest_pending_ms"] = time.Since(b.Enqueued).Milliseconds()
			}
		}
		if d.Retired != nil {
			out["retired_models"] = d.Retired.Len()
		}
		if d.Drivers != nil {
			out["drivers"] = d.Drivers.Statuses()
		}
		if r.URL.Query().Get("detail") == "1" {
			out["instances"] = sess.Resolver.Instances.Snapshot()
			out["orphans"] = sess.Resolver.Orphans.Snapshot()
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.Handle("/reset-session", middleware.AdminOnly(d.AdminToken, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		old := d.Sessions.Reset(nil)
		cur := d.Sessions.Current()
		logger.L().Info("session_reset", "old", old.ID.String(), "new", cur.ID.String())
		writeJSON(w, http.StatusOK, map[string]string{"session": cur.ID.String()})
	})))

	mux.Handle("/replacements", middleware.AdminOnly(d.AdminToken, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var items []replace.Replacement
		if err := json.NewDecoder(r.Body).Decode(&items); err != nil || len(items) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected non-empty replacement list"})
			return
		}
		id := d.Queue.Push(items)
		writeJSON(w, http.StatusAccepted, map[string]int64{"id": id})
	})))

	// 渲染端取下一批替换，被替换的模型登记到退役表；wait 指定长轮询时长（上限 30s）
	mux.Handle("/replacements/next", middleware.AdminOnly(d.AdminToken, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b, ok := d.Queue.Pop()
		if wait, err := time.ParseDuration(r.URL.Query().Get("wait")); !ok && err == nil && wait > 0 {
			if wait > 30*time.Second {
				wait = 30 * time.Second
			}
			ctx, cancel := context.WithTimeout(r.Context(), wait)
			var nerr error
			b, nerr = d.Queue.Next(ctx)
			cancel()
			ok = nerr == nil
		}
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		for _, it := range b.Items {
			var prim uint64
			if d.Draw != nil {
				if ps := d.Draw.DrawSet(it.FID); len(ps) > 0 {
					prim = ps[0]
				}
			}
			if !d.Retired.Add(it.ModelName, it.TransformName, prim) {
				logger.L().Debug("replacement_already_retired", "model", it.ModelName, "batch", b.ID)
			}
		}
		writeJSON(w, http.StatusOK, b)
	})))

	// 渲染端应用替换后回报新旧图元，迁移图元登记
	mux.Handle("/replacements/applied", middleware.AdminOnly(d.AdminToken, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var moves []struct {
			Old uint64 `json:"old_prim"`
			New uint64 `json:"new_prim"`
		}
		if err := json.NewDecoder(r.Body).Decode(&moves); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		n := 0
		for _, m := range moves {
			if d.Draw.Reindex(m.Old, m.New) {
				n++
			}
		}
		writeJSON(w, http.StatusOK, map[string]int{"reindexed": n})
	})))

	mux.HandleFunc("/retired", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		v, ok := d.Retired.Get(name)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, v)
	})

	// 渲染端登记图元来源（需管理令牌），拾取时按图元反查要素 ID
	tagPost := middleware.AdminOnly(d.AdminToken, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tags []struct {
			Prim uint64 `json:"prim"`
			FID  int64  `json:"fid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&tags); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		for _, t := range tags {
			d.Draw.Tag(t.Prim, t.FID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("/draw-tags", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			tagPost.ServeHTTP(w, r)
		case http.MethodGet:
			prim, err := strconv.ParseUint(r.URL.Query().Get("prim"), 10, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid prim"})
				return
			}
			fid, ok := d.Draw.FID(prim)
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int64{"fid": fid})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// 按 FID 或来源屏蔽单个要素；FID 经会话的来源索引换成来源，之后重复请求同一瓦片时不再输出
	mux.Handle("/blacklist/features", middleware.AdminOnly(d.AdminToken, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			FIDs    []int64  `json:"fids"`
			Origins []string `json:"origins"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		sess := d.Sessions.Current()
		fc, ok := sess.Blacklist.(blacklist.FeatureCache)
		if !ok {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "feature blacklist not supported"})
			return
		}
		origins := append([]string(nil), body.Origins...)
		unknown := []int64{}
		for _, fid := range body.FIDs {
			if o, found := sess.Origins.Origin(fid); found {
				origins = append(origins, o)
			} else {
				unknown = append(unknown, fid)
			}
		}
		for _, o := range origins {
			fc.BlacklistFeature(r.Context(), o)
		}
		logger.L().Info("feature_blacklist", "count", len(origins), "unknown", len(unknown))
		writeJSON(w, http.StatusOK, map[string]any{"blacklisted": origins, "unknown_fids": unknown})
	})))

	mux.HandleFunc("/drivers", func(w http.ResponseWriter, r *http.Request) {
		if d.Drivers == nil {
			writeJSON(w, http.StatusOK, []plugins.Status{})
			return
		}
		writeJSON(w, http.StatusOK, d.Drivers.Statuses())
	})

	return mux
}
