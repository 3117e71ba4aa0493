// Command gomemd runs the cache server: it parses CLI flags, optionally
// daemonizes, wires up logging, and blocks serving connections until the
// listener fails.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/jacobsa/daemonize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/binarycache/gomemd/server"
)

// daemonizedEnvVar marks a process as the re-exec'd child started by
// daemonize.Run, so it knows to report its own startup outcome back to the
// waiting parent instead of trying to daemonize again.
const daemonizedEnvVar = "_GOMEMD_DAEMONIZED"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := server.DefaultConfig()
	daemon := flag.Bool("d", false, "run as daemon")
	flag.StringVar(&cfg.ListenAddr, "l", cfg.ListenAddr, "listening IP address")
	flag.IntVar(&cfg.Port, "p", cfg.Port, "listening port")
	flag.IntVar(&cfg.Threads, "t", cfg.Threads, "worker thread count")
	flag.IntVar(&cfg.CacheMB, "m", cfg.CacheMB, "max cache memory, MB")
	flag.IntVar(&cfg.MaxConns, "c", cfg.MaxConns, "max simultaneous connections")
	flag.Usage = usage
	flag.Parse()

	if cfg.Threads < 1 {
		fmt.Fprintln(os.Stderr, "bad command line: -t must be >= 1")
		usage()
		return 1
	}
	if cfg.CacheMB <= 0 {
		fmt.Fprintln(os.Stderr, "bad command line: -m must be > 0")
		usage()
		return 1
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	child := os.Getenv(daemonizedEnvVar) == "1"
	if *daemon && !child {
		return daemonizeSelf()
	}

	// SIGPIPE on a socket write would otherwise kill the process; ignore
	// it process-wide.
	signalIgnore(syscall.SIGPIPE)
	if *daemon {
		signalIgnore(syscall.SIGHUP)
	}

	log.Info().
		Str("addr", cfg.ListenAddr).
		Int("port", cfg.Port).
		Int("threads", cfg.Threads).
		Int("cache_mb", cfg.CacheMB).
		Int("max_conns", cfg.MaxConns).
		Msg("starting gomemd")

	s := server.New(cfg)
	addr := fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if child {
		// Tell the parent daemonize.Run is still blocked in whether the
		// listener is bound; the parent then exits 0 or 1 accordingly.
		if serr := daemonize.SignalOutcome(err); serr != nil {
			log.Error().Err(serr).Msg("failed to signal daemon outcome")
		}
	}
	if err != nil {
		log.Error().Err(err).Str("addr", addr).Msg("listen failed")
		return 1
	}

	if err := s.Serve(ln); err != nil {
		log.Error().Err(err).Msg("server exited")
		return 1
	}
	return 0
}

// daemonizeSelf re-execs the current binary with the same arguments and a
// marker environment variable, waits for it to report its own startup
// outcome, and exits 0 on success / 1 on failure — the parent never serves
// connections itself.
func daemonizeSelf() int {
	path, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemonize: cannot resolve executable path:", err)
		return 1
	}

	env := append(os.Environ(), daemonizedEnvVar+"=1")
	if err := daemonize.Run(path, os.Args[1:], env, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "daemonize failed:", err)
		return 1
	}
	return 0
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [-d] [-l IP] [-p PORT] [-t THREADS] [-m CACHE_MB] [-c MAX_CONNS]\n", os.Args[0])
	flag.PrintDefaults()
}
