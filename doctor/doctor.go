// Package doctor runs the `fono doctor` checks: configuration, service,
// microphone and clipboard.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"fono/audio"
	"fono/clipboard"
	"fono/log"
)

// quietLevel is the RMS below which a test recording counts as silence.
const quietLevel = 0.01

type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Deps are the pieces under test. A nil Service or Audio fails its check.
type Deps struct {
	ConfigErr  error
	ConfigFile string
	Service    Pinger
	ServiceURL string
	Audio      audio.Context
	Device     *audio.DeviceInfo
	RecordFor  time.Duration
	Clipboard  bool
}

type check struct {
	title string
	run   func(ctx context.Context, w io.Writer, d Deps) bool
}

var checks = []check{
	{"Configuração", checkConfig},
	{"Serviço de treino", checkService},
	{"Microfone", checkMicrophone},
	{"Área de transferência", checkClipboard},
}

// Run executes every check and returns an exit code (0 all pass, 1 any fail).
func Run(ctx context.Context, w io.Writer, d Deps) int {
	fmt.Fprintln(w, "fono doctor - diagnóstico do sistema")
	fmt.Fprintln(w, "====================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.title)
		if !c.run(ctx, w, d) {
			failed++
		}
		if ctx.Err() != nil {
			fmt.Fprintln(w, "\nInterrompido.")
			return 1
		}
	}

	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "Tudo certo!")
		log.Info("doctor: all checks passed")
		return 0
	}
	fmt.Fprintf(w, "%d verificação(ões) falharam. Veja os detalhes acima.\n", failed)
	log.Warnf("doctor: %d checks failed", failed)
	return 1
}

func pass(w io.Writer, format string, args ...any) bool {
	fmt.Fprintf(w, "  PASS: "+format+"\n", args...)
	return true
}

func fail(w io.Writer, format string, args ...any) bool {
	fmt.Fprintf(w, "  FAIL: "+format+"\n", args...)
	return false
}

func warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  WARN: "+format+"\n", args...)
}

func checkConfig(_ context.Context, w io.Writer, d Deps) bool {
	if d.ConfigErr != nil {
		return fail(w, "%v", d.ConfigErr)
	}
	if d.ConfigFile == "" {
		return pass(w, "usando variáveis de ambiente e padrões (nenhum fono.yaml)")
	}
	return pass(w, "lido de %s", d.ConfigFile)
}

func checkService(ctx context.Context, w io.Writer, d Deps) bool {
	if d.Service == nil {
		return fail(w, "cliente do serviço não configurado")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rtt, err := d.Service.Ping(ctx)
	if err != nil {
		return fail(w, "%s não respondeu: %v", d.ServiceURL, err)
	}
	return pass(w, "%s respondeu em %s", d.ServiceURL, rtt.Round(time.Millisecond))
}

func checkMicrophone(ctx context.Context, w io.Writer, d Deps) bool {
	if d.Audio == nil {
		return fail(w, "nenhum sistema de áudio disponível")
	}
	record := d.RecordFor
	if record <= 0 {
		record = 2 * time.Second
	}

	ctl := audio.NewController(d.Audio, audio.WithDevice(d.Device))
	defer ctl.Close()

	name := ctl.DeviceName()
	fmt.Fprintf(w, "  Gravando %s de %s, fale algo...\n", record, name)
	h, err := ctl.BeginCapture(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrPermissionDenied) {
			return fail(w, "permissão de microfone negada: %v", err)
		}
		return fail(w, "microfone indisponível: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(record):
	}
	art, err := ctl.EndCapture(h)
	if err != nil {
		return fail(w, "gravação falhou: %v", err)
	}
	defer ctl.Discard(art)
	if ctl.Recording() {
		return fail(w, "o microfone não foi liberado após a gravação")
	}

	if len(art.Data) == 0 {
		return fail(w, "nenhum áudio capturado")
	}
	if audio.IsBluetooth(name) {
		warn(w, "%s parece bluetooth; a qualidade pode prejudicar a avaliação", name)
	}
	if art.Level < quietLevel {
		warn(w, "sinal muito baixo (nível %.3f); verifique o volume do microfone", art.Level)
	}
	return pass(w, "%.1f KB de %s em %s (nível %.3f)",
		float64(len(art.Data))/1024, art.ContentType, art.Duration.Round(10*time.Millisecond), art.Level)
}

func checkClipboard(ctx context.Context, w io.Writer, d Deps) bool {
	if !d.Clipboard {
		warn(w, "verificação ignorada")
		return true
	}
	if !clipboard.Available() {
		return fail(w, "%v", clipboard.ErrUnsupported)
	}

	want := fmt.Sprintf("fono-doctor-%d", time.Now().UnixNano())
	type result struct {
		got   string
		err   error
		phase string
	}
	ch := make(chan result, 1)
	go func() {
		if err := clipboard.Copy(want); err != nil {
			ch <- result{err: err, phase: "cópia"}
			return
		}
		got, err := clipboard.Read()
		ch <- result{got: got, err: err, phase: "leitura"}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fail(w, "%s falhou: %v", res.phase, res.err)
		}
		if res.got != want {
			return fail(w, "conteúdo diferente: escrito %q, lido %q", want, res.got)
		}
		return pass(w, "cópia verificada")
	case <-time.After(3 * time.Second):
		return fail(w, "tempo esgotado (utilitário de clipboard travou?)")
	case <-ctx.Done():
		return fail(w, "interrompido")
	}
}
