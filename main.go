package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fono/audio"
	"fono/beep"
	"fono/coach"
	"fono/config"
	"fono/doctor"
	"fono/history"
	"fono/log"
	"fono/report"
	"fono/session"
	"fono/shutdown"
)

var version = "dev"

// errChecksFailed is returned by `fono doctor` after it printed its own report.
var errChecksFailed = errors.New("doctor checks failed")

var v = viper.New()

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errChecksFailed) {
			fmt.Fprintf(os.Stderr, "Erro: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fono",
		Short:         "Treino de pronúncia guiado por fonoaudiologia, no terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runTrain,
	}
	if err := config.BindFlags(v, root); err != nil {
		panic(err)
	}
	flags := root.PersistentFlags()
	flags.String("env-file", ".env", "dotenv file loaded before the environment is read")
	flags.String("profile", "", "enable pprof server (e.g. localhost:6060)")
	flags.MarkHidden("profile")

	trainFlags := func(cmd *cobra.Command) {
		cmd.Flags().Bool("pick-device", false, "choose the microphone interactively")
		cmd.Flags().String("difficulty", "", "pre-select difficulty (R, L, S, CH, X, LH)")
		cmd.Flags().Bool("no-beep", false, "disable recording cues")
	}
	trainFlags(root)

	train := &cobra.Command{
		Use:   "train",
		Short: "Start a training session (default)",
		RunE:  runTrain,
	}
	trainFlags(train)

	root.AddCommand(
		train,
		&cobra.Command{
			Use:   "history",
			Short: "List past sessions and score evolution",
			RunE:  runHistory,
		},
		&cobra.Command{
			Use:   "setup",
			Short: "Configure service address and identity",
			RunE:  runSetup,
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Check configuration, service, microphone and clipboard",
			RunE:  runDoctor,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "fono %s\n", version)
			},
		},
	)
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(v, cfgFile, envFile)
}

// initLogging resolves the log directory and opens the diagnostic logs.
// Failures only warn: the app works without logs.
func initLogging(cfg config.Config) {
	logPath, err := log.ResolveDir(cfg.LogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Aviso: diretório de log inválido: %v\n", err)
		return
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Aviso: não foi possível criar o diretório de log: %v\n", err)
		return
	}
	initCrashLog()
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Aviso: não foi possível iniciar o log: %v\n", err)
	}
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	f, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(f, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(f, debug.CrashOptions{})
}

func startProfiler(cmd *cobra.Command) {
	addr, _ := cmd.Flags().GetString("profile")
	if addr == "" {
		return
	}
	go func() {
		log.Infof("pprof listening on http://%s/debug/pprof/", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Errorf("pprof server: %v", err)
		}
	}()
}

func newClient(cfg config.Config) (*coach.Client, error) {
	return coach.NewClient(coach.Config{
		BaseURL:   cfg.APIURL,
		Identity:  cfg.Identity(),
		UseGemini: cfg.UseGemini,
		Timeout:   cfg.Timeout,
	})
}

// pickDevice resolves the capture device: interactive choice, the configured
// name, or nil for the system default.
func pickDevice(actx audio.Context, interactive bool, name string) (*audio.DeviceInfo, error) {
	if interactive {
		return audio.SelectDevice(actx)
	}
	dev, err := audio.FindDevice(actx, name)
	if err != nil {
		log.Warnf("device %q: %v, using default", name, err)
		fmt.Fprintf(os.Stderr, "Aviso: microfone %q não encontrado, usando o padrão do sistema\n", name)
		return nil, nil
	}
	return dev, nil
}

func runTrain(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	initLogging(cfg)
	defer log.Close()
	startProfiler(cmd)

	if off, _ := cmd.Flags().GetBool("no-beep"); off {
		beep.Disable()
	}
	var preset coach.Difficulty
	if s, _ := cmd.Flags().GetString("difficulty"); s != "" {
		if preset, err = coach.ParseDifficulty(s); err != nil {
			return err
		}
	}

	ctx, stop := shutdown.Context(cmd.Context())
	defer stop()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		return fmt.Errorf("iniciando áudio: %w", err)
	}
	defer actx.Close()

	interactive, _ := cmd.Flags().GetBool("pick-device")
	dev, err := pickDevice(actx, interactive, cfg.Device)
	if errors.Is(err, audio.ErrSelectionCanceled) {
		return nil
	}
	if err != nil {
		return err
	}
	deviceName := "padrão do sistema"
	if dev != nil {
		deviceName = dev.Name
	}
	log.Info("recording_device: " + deviceName)

	store := history.NewStore(client, cfg.ClientID)
	store.OnChange(func() { tuiSend(historyMsg{}) })
	go func() {
		if err := store.Refresh(ctx); err != nil {
			log.Warnf("initial history fetch: %v", err)
		}
	}()

	ctl := audio.NewController(actx,
		audio.WithDevice(dev),
		audio.WithLevel(func(l float64) { tuiSend(levelMsg(l)) }),
	)
	defer ctl.Close()

	machine := session.New(client, ctl,
		session.WithClientID(cfg.ClientID),
		session.WithSpecialist(cfg.SpecialistID),
		session.WithAge(cfg.Age),
		session.WithHistory(store),
		session.WithObserver(func(s session.Snapshot) { tuiSend(snapshotMsg(s)) }),
	)
	if preset != "" {
		if err := machine.ChooseDifficulty(preset); err != nil {
			return err
		}
	}

	p := NewTUIProgram(ctx, tuiDeps{
		machine:  machine,
		history:  store,
		exporter: report.FileExporter{Dir: cfg.ExportDir},
		name:     cfg.ClientName,
		device:   deviceName,
	})
	tuiMu.Lock()
	tuiProgram = p
	tuiMu.Unlock()

	_, runErr := p.Run()

	tuiMu.Lock()
	tuiProgram = nil
	tuiMu.Unlock()

	teardown(machine)

	if runErr != nil && !(errors.Is(runErr, tea.ErrProgramKilled) && ctx.Err() != nil) {
		log.Errorf("TUI error: %v", runErr)
		return runErr
	}
	return nil
}

// teardown cancels a session left active and releases the microphone.
func teardown(m *session.Machine) {
	if m.State() == session.StateActive {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Abandon(ctx)
	}
	m.Close()
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	initLogging(cfg)
	defer log.Close()

	ctx, stop := shutdown.Context(cmd.Context())
	defer stop()

	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	store := history.NewStore(client, cfg.ClientID)
	if err := store.Refresh(ctx); err != nil {
		return fmt.Errorf("buscando histórico: %w", err)
	}

	out := cmd.OutOrStdout()
	store.Render(out)

	st := store.Stats()
	if st.Finished == 0 {
		return nil
	}
	fmt.Fprintf(out, "\nSessões concluídas: %d de %d\n", st.Finished, st.Sessions)
	fmt.Fprintf(out, "Média: %s · Melhor: %s\n", report.FormatScore(st.AverageScore), report.FormatScore(st.BestScore))
	if st.WordsTotal > 0 {
		fmt.Fprintf(out, "Palavras: %d/%d\n", st.WordsCorrect, st.WordsTotal)
	}
	if pts := store.Evolution(10); len(pts) > 1 {
		fmt.Fprint(out, "Evolução:")
		for _, p := range pts {
			fmt.Fprintf(out, " %d%%", p.Score)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}
	if _, err := config.RunSetup(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Configuração salva em %s\n", path)
	return nil
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx, stop := shutdown.Context(cmd.Context())
	defer stop()

	deps := doctor.Deps{Clipboard: true}
	cfg, err := loadConfig(cmd)
	if err == nil {
		err = cfg.Validate()
	}
	deps.ConfigErr = err
	deps.ConfigFile = cfg.File
	initLogging(cfg)
	defer log.Close()

	if cfg.APIURL != "" {
		if client, err := newClient(cfg); err == nil {
			deps.Service = client
			deps.ServiceURL = client.BaseURL()
		}
	}

	if actx, err := audio.NewContext(); err == nil {
		defer actx.Close()
		deps.Audio = actx
		if dev, err := audio.FindDevice(actx, cfg.Device); err == nil {
			deps.Device = dev
		}
	} else {
		log.Errorf("doctor: audio context: %v", err)
	}

	if doctor.Run(ctx, cmd.OutOrStdout(), deps) != 0 {
		return errChecksFailed
	}
	return nil
}
