package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"flowsculpt.ai/internal/logging"
	"flowsculpt.ai/internal/persistence/indexdb"
	persistlog "flowsculpt.ai/internal/persistence/log"
	"flowsculpt.ai/internal/persistence/mirror"
	"flowsculpt.ai/internal/persistence/snapshot"
	"flowsculpt.ai/internal/sim/controller"
	"flowsculpt.ai/internal/sim/setup"
	"flowsculpt.ai/internal/sim/tuning"
	"flowsculpt.ai/internal/transport/httpapi"
	"flowsculpt.ai/internal/transport/stream"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		simID      = flag.String("sim", "sim_1", "simulation id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (frames + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		allowRemote = flag.Bool("allow_remote", false, "accept stream clients from non-loopback addresses")
		readOnly    = flag.Bool("read_only", false, "reject INPUT messages on the stream")

		logLevel  = flag.String("log_level", "info", "log level (debug, info, warn, error)")
		logFormat = flag.String("log_format", "text", "log format (text, json)")
	)
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	logger, err := logging.New(*logLevel, *logFormat)
	if err != nil {
		logger.WithError(err).Warn("logging flags")
	}
	log := logger.WithField("component", "server")

	simDir := filepath.Join(*dataDir, "sims", *simID)
	_ = os.MkdirAll(simDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = snapshot.Latest(filepath.Join(simDir, "snapshots"))
	}

	tune, err := loadTuning(tp, log)
	if err != nil {
		log.WithError(err).Fatal("load tuning")
	}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(simDir, "index", "index.sqlite"))
		if err != nil {
			log.WithError(err).Fatal("open index db")
		}
		defer idx.Close()
		if err := idx.UpsertTuning(*simID, tune); err != nil {
			log.WithError(err).Warn("index db: upsert tuning")
		}
	}

	var snapMirror *mirror.Mirror
	if cfg, ok := mirror.ConfigFromEnv(os.LookupEnv); ok {
		client, err := mirror.NewClient(cfg)
		if err != nil {
			log.WithError(err).Fatal("snapshot mirror")
		}
		snapMirror = mirror.New(client, *dataDir, cfg.Prefix, logger.WithField("component", "mirror"))
		defer snapMirror.Close()
		log.WithField("bucket", cfg.Bucket).Info("mirroring snapshots")
	}

	ctrl, err := setup.NewController(*simID, tune, logger)
	if err != nil {
		log.WithError(err).Fatal("controller")
	}

	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			log.WithError(err).Fatal("read snapshot")
		}
		if snap.Header.SimID != "" && snap.Header.SimID != *simID {
			log.Fatalf("snapshot sim id mismatch: flag=%s snap=%s", *simID, snap.Header.SimID)
		}
		if err := ctrl.ImportSnapshot(snap); err != nil {
			log.WithError(err).Fatal("import snapshot")
		}
		log.WithFields(logrus.Fields{"snapshot": filepath.Base(snapshotToLoad), "frame": ctrl.Frame()}).Info("resumed")
	} else {
		if err := setup.Seed(ctrl, tune); err != nil {
			log.WithError(err).Fatal("obstacle")
		}
		// Frame 0 is the base every replay starts from.
		snap := ctrl.ExportSnapshot()
		path := filepath.Join(simDir, "snapshots", snapshot.FileName(snap.Header.Frame))
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			log.WithError(err).Fatal("initial snapshot")
		}
		idx.RecordSnapshot(path, snap)
		snapMirror.Enqueue(path)
		log.WithFields(logrus.Fields{
			"grid":     fmt.Sprintf("%dx%d", tune.Grid.X, tune.Grid.Y),
			"obstacle": obstacleName(tune.Obstacle),
			"barrier":  ctrl.Metrics().BarrierCells,
		}).Info("fresh simulation")
	}

	ctx, cancel := signalContext()
	defer cancel()

	frameLog := persistlog.NewFrameLogger(simDir)
	defer frameLog.Close()
	ctrl.SetFrameLogger(multiFrameLogger{a: frameLog, b: idx})

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	ctrl.SetSnapshotSink(snapCh)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(simDir, "snapshots", snapshot.FileName(snap.Header.Frame))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					log.WithError(err).Error("snapshot write")
					continue
				}
				idx.RecordSnapshot(path, snap)
				snapMirror.Enqueue(path)
				log.WithField("frame", snap.Header.Frame).Info("snapshot written")
			}
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("controller stopped")
		}
	}()

	streamSrv := stream.NewServer(ctrl, stream.Config{AllowRemote: *allowRemote, ReadOnly: *readOnly}, logger.WithField("component", "stream"))

	gin.SetMode(gin.ReleaseMode)
	router := httpapi.NewRouter(ctrl, httpapi.Options{
		Stream: streamSrv.WSHandler(),
		ExtraMetrics: func(w io.Writer) {
			fmt.Fprintf(w, "# HELP flowsculpt_stream_sessions Connected stream sessions.\n")
			fmt.Fprintf(w, "# TYPE flowsculpt_stream_sessions gauge\n")
			fmt.Fprintf(w, "flowsculpt_stream_sessions{sim=%q} %d\n", *simID, streamSrv.Active())
			if idx != nil {
				fmt.Fprintf(w, "# HELP flowsculpt_index_dropped_total Index writes dropped under backpressure.\n")
				fmt.Fprintf(w, "# TYPE flowsculpt_index_dropped_total counter\n")
				fmt.Fprintf(w, "flowsculpt_index_dropped_total{sim=%q} %d\n", *simID, idx.Dropped())
			}
			if snapMirror != nil {
				st := snapMirror.Stats()
				fmt.Fprintf(w, "# HELP flowsculpt_mirror_uploads_total Snapshot mirror uploads by result.\n")
				fmt.Fprintf(w, "# TYPE flowsculpt_mirror_uploads_total counter\n")
				fmt.Fprintf(w, "flowsculpt_mirror_uploads_total{sim=%q,result=\"ok\"} %d\n", *simID, st.Uploaded)
				fmt.Fprintf(w, "flowsculpt_mirror_uploads_total{sim=%q,result=\"failed\"} %d\n", *simID, st.Failed)
				fmt.Fprintf(w, "flowsculpt_mirror_uploads_total{sim=%q,result=\"dropped\"} %d\n", *simID, st.Dropped)
			}
		},
	}, logger.WithField("component", "http"))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithField("addr", *addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("ListenAndServe")
	}
	cancel()
	<-runDone
	<-writerDone
}

// loadTuning reads tuning.yaml, falling back to defaults when the file is
// missing, then applies FLOWSCULPT_* overrides.
func loadTuning(path string, log logrus.FieldLogger) (tuning.Tuning, error) {
	tune, err := tuning.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return tune, err
		}
		log.WithField("path", path).Info("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	if err := tune.ApplyEnv(os.LookupEnv); err != nil {
		return tune, err
	}
	return tune, nil
}

func obstacleName(o tuning.Obstacle) string {
	if o.Image != "" {
		return filepath.Base(o.Image)
	}
	return o.Preset
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

type multiFrameLogger struct {
	a controller.FrameLogger
	b *indexdb.SQLiteIndex
}

func (m multiFrameLogger) WriteFrame(entry controller.FrameLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteFrame(entry)
	}
	_ = m.b.WriteFrame(entry)
	return nil
}
