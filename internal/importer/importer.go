// Package importer backfills the Store from a host runtime's on-disk
// session archive: transcripts under root/agents/{kind}/sessions/*.jsonl
// are replayed through the ingestion service, oldest session first.
// External session keys make the run idempotent.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/trinsiklabs/onelist/internal/bus"
	"github.com/trinsiklabs/onelist/internal/ingest"
	"github.com/trinsiklabs/onelist/internal/sessions"
	"github.com/trinsiklabs/onelist/internal/store"
	"github.com/trinsiklabs/onelist/internal/transcript"
	"github.com/trinsiklabs/onelist/pkg/protocol"
)

// importChannel tags replayed sessions; live sync uses the same channel so
// a later live append lands on the imported stream.
const importChannel = "openclaw"

// Importer replays archived sessions through the ingestion path.
type Importer struct {
	svc     *ingest.Service
	entries store.EntryStore
	events  bus.Publisher
}

// New creates an importer. events may be nil.
func New(svc *ingest.Service, entries store.EntryStore, events bus.Publisher) *Importer {
	return &Importer{svc: svc, entries: entries, events: events}
}

// List discovers importable session files under root, applying the filter.
// Files are returned oldest-session-first so a run replays history in order.
func List(root string, filter protocol.ImportFilter) ([]protocol.ImportFileInfo, error) {
	agentsDir := filepath.Join(root, "agents")
	kinds, err := os.ReadDir(agentsDir)
	if err != nil {
		return nil, fmt.Errorf("read agents dir: %w", err)
	}

	var infos []protocol.ImportFileInfo
	for _, k := range kinds {
		if !k.IsDir() {
			continue
		}
		kind := k.Name()
		if filter.AgentKind != "" && filter.AgentKind != kind {
			continue
		}

		sessDir := filepath.Join(agentsDir, kind, "sessions")
		files, err := os.ReadDir(sessDir)
		if err != nil {
			continue // kind without a sessions dir
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			path := filepath.Join(sessDir, f.Name())
			info := inspect(path, kind)
			if info == nil {
				continue
			}
			if !withinWindow(info.Earliest, filter) {
				continue
			}
			infos = append(infos, *info)
		}
	}

	sort.Slice(infos, func(i, j int) bool {
		ti, tj := infos[i].Earliest, infos[j].Earliest
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.Before(*tj)
		}
	})
	return infos, nil
}

// Run lists matching files and imports them sequentially. Per-file failures
// are reported, never fatal; dry runs stop after listing.
func (im *Importer) Run(ctx context.Context, ownerID, root string, filter protocol.ImportFilter) (*protocol.ImportResponse, error) {
	infos, err := List(root, filter)
	if err != nil {
		return nil, err
	}

	resp := &protocol.ImportResponse{OK: true}
	for i := range infos {
		info := &infos[i]
		if filter.DryRun {
			resp.Results = append(resp.Results, protocol.ImportFileResult{
				Path:       info.Path,
				SessionKey: sessions.BuildKey(importChannel, info.AgentKind, info.SessionID),
				Imported:   0,
			})
			continue
		}

		res := im.ImportFile(ctx, ownerID, info.Path, info.AgentKind)
		if res.Error != "" {
			resp.FailedCount++
		} else {
			resp.ImportedCount += res.Imported
		}
		resp.Results = append(resp.Results, *res)

		if im.events != nil {
			im.events.Broadcast(protocol.NewEvent(protocol.EventImportFile, res))
		}
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
	}
	return resp, nil
}

// ImportFile replays a single session transcript. An existing stream with
// the same key short-circuits the file: the archive is immutable, so a
// stream that exists was already imported or is being live-synced.
func (im *Importer) ImportFile(ctx context.Context, ownerID, path, agentKind string) *protocol.ImportFileResult {
	sessionID := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	key := sessions.BuildKey(importChannel, agentKind, sessionID)
	res := &protocol.ImportFileResult{Path: path, SessionKey: key}

	existing, err := im.entries.GetByExternalKey(ctx, ownerID, key)
	if err == nil && existing != nil {
		res.EntryID = existing.ID
		res.AlreadyExisted = true
		return res
	}

	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	prov := protocol.Provenance{AgentKind: agentKind}
	var appendErr error
	transcript.Scan(f, 0, func(rec *transcript.Record) {
		if appendErr != nil {
			return
		}
		text := rec.Text()
		if text == "" || transcript.IsNoise(text) {
			return
		}
		req := &protocol.AppendRequest{
			SessionID: key,
			Message: protocol.ChatMessage{
				Role:      rec.Role,
				Content:   text,
				MessageID: rec.ID,
				Source:    importChannel,
			},
		}
		if t := rec.Time(); !t.IsZero() {
			req.Message.Timestamp = t
		}
		out, err := im.svc.Append(ctx, ownerID, prov, req)
		if err != nil {
			appendErr = err
			return
		}
		res.EntryID = out.StreamID
		res.Imported++
	})
	if appendErr != nil {
		res.Error = appendErr.Error()
		slog.Warn("import aborted mid-file", "path", path, "imported", res.Imported, "error", appendErr)
	}
	return res
}

func inspect(path, kind string) *protocol.ImportFileInfo {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info := &protocol.ImportFileInfo{
		Path:      path,
		AgentKind: kind,
		SessionID: strings.TrimSuffix(filepath.Base(path), ".jsonl"),
	}
	var earliest time.Time
	stats := transcript.Scan(f, 0, func(rec *transcript.Record) {
		if t := rec.Time(); !t.IsZero() && (earliest.IsZero() || t.Before(earliest)) {
			earliest = t
		}
	})
	info.MessageCount = stats.Messages
	if !earliest.IsZero() {
		info.Earliest = &earliest
	}
	return info
}

func withinWindow(earliest *time.Time, filter protocol.ImportFilter) bool {
	if earliest == nil {
		return filter.After == nil && filter.Before == nil
	}
	if filter.After != nil && earliest.Before(*filter.After) {
		return false
	}
	if filter.Before != nil && earliest.After(*filter.Before) {
		return false
	}
	return true
}
