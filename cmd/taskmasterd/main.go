// Command taskmasterd runs the Master process: storage, discovery,
// the coordinator kernel, the worker listener, and the admin façade.
// The Master dials Nodes directly (coordinator.TCPNodeDialer); it never
// listens for inbound Node connections.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cuemby/taskmaster/pkg/api"
	"github.com/cuemby/taskmaster/pkg/catalog"
	"github.com/cuemby/taskmaster/pkg/coordinator"
	"github.com/cuemby/taskmaster/pkg/discovery"
	"github.com/cuemby/taskmaster/pkg/events"
	"github.com/cuemby/taskmaster/pkg/log"
	"github.com/cuemby/taskmaster/pkg/metrics"
	"github.com/cuemby/taskmaster/pkg/security"
	"github.com/cuemby/taskmaster/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "taskmasterd",
	Short:   "taskmasterd runs the cluster Master coordinator",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)
	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Master process",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("data-dir", "./data", "Directory for the embedded store")
	serveCmd.Flags().String("worker-addr", "0.0.0.0:7200", "Address advertised to Nodes for their worker callback, and listened on for worker connections")
	serveCmd.Flags().String("admin-addr", "127.0.0.1:7300", "Admin façade listen address")
	serveCmd.Flags().String("admin-secret", "taskmaster-admin", "Admin façade shared secret")
	serveCmd.Flags().String("admin-socket", "", "Optional Unix socket path serving read-only admin status, no secret required")
	serveCmd.Flags().String("health-addr", "127.0.0.1:9090", "Health/metrics HTTP listen address")
	serveCmd.Flags().String("advertise-host", "127.0.0.1", "Host advertised to Nodes for their worker callback")
	serveCmd.Flags().Bool("multicast-all", false, "Auto-admit every mDNS-discovered node without promotion")
	serveCmd.Flags().String("cluster-id", "default", "Identifies the key used to encrypt the persisted Master identity")
	serveCmd.Flags().Bool("discovery", true, "Enable mDNS node discovery")
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	workerAddr, _ := cmd.Flags().GetString("worker-addr")
	adminAddr, _ := cmd.Flags().GetString("admin-addr")
	adminSecret, _ := cmd.Flags().GetString("admin-secret")
	adminSocket, _ := cmd.Flags().GetString("admin-socket")
	healthAddr, _ := cmd.Flags().GetString("health-addr")
	advertiseHost, _ := cmd.Flags().GetString("advertise-host")
	multicastAll, _ := cmd.Flags().GetBool("multicast-all")
	clusterID, _ := cmd.Flags().GetString("cluster-id")
	discoveryEnabled, _ := cmd.Flags().GetBool("discovery")

	logger := log.WithComponent("taskmasterd")

	metrics.SetVersion(Version)

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		metrics.RegisterComponent("storage", false, err.Error())
		return fmt.Errorf("open store: %w", err)
	}
	metrics.RegisterComponent("storage", true, dataDir)
	defer store.Close()

	if err := security.SetClusterEncryptionKey(security.DeriveKeyFromClusterID(clusterID)); err != nil {
		return fmt.Errorf("set cluster encryption key: %w", err)
	}
	keys, err := loadOrCreateMasterKeys(store)
	if err != nil {
		return fmt.Errorf("master identity: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	workerListenPort, err := portOf(workerAddr)
	if err != nil {
		return fmt.Errorf("worker-addr: %w", err)
	}

	coord := coordinator.New(
		store,
		coordinator.TCPNodeDialer{},
		catalog.NewMemoryCatalog(),
		keys,
		broker,
		coordinator.WithMasterAddr(advertiseHost, workerListenPort),
		coordinator.WithMulticastAll(multicastAll),
	)
	defer coord.Shutdown()

	collector := metrics.NewCollector(coord)
	collector.Start()
	defer collector.Stop()

	health := api.NewHealthServer(coord)
	go func() {
		if err := health.Start(healthAddr); err != nil {
			logger.Error().Err(err).Msg("health server exited")
		}
	}()

	admin := api.NewServer(coord, adminSecret)
	metrics.RegisterComponent("admin", true, adminAddr)
	go func() {
		if err := admin.Start(adminAddr); err != nil {
			metrics.RegisterComponent("admin", false, err.Error())
			logger.Error().Err(err).Msg("admin façade exited")
		}
	}()
	defer admin.Stop()
	if adminSocket != "" {
		go func() {
			if err := admin.StartUnixSocket(adminSocket); err != nil {
				logger.Error().Err(err).Msg("admin unix socket exited")
			}
		}()
	}

	workerLn, err := listenTCP(workerAddr)
	if err != nil {
		return fmt.Errorf("worker listener: %w", err)
	}
	metrics.RegisterComponent("workers", true, workerAddr)
	go func() {
		if err := coord.ServeWorkers(workerLn); err != nil {
			metrics.RegisterComponent("workers", false, err.Error())
			logger.Error().Err(err).Msg("worker listener exited")
		}
	}()

	var shutdownDiscovery func() error
	if discoveryEnabled {
		metrics.RegisterComponent("discovery", true, "mdns")
		shutdown, err := discovery.Advertise("taskmaster-master", advertiseHost, workerListenPort)
		if err != nil {
			logger.Warn().Err(err).Msg("mdns advertise failed; continuing without it")
		} else {
			shutdownDiscovery = shutdown
		}

		listener := discovery.NewListener(10 * time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := listener.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("discovery listener stopped")
			}
		}()
		go func() {
			for candidate := range listener.Candidates {
				if err := coord.OnDiscovered(candidate.Host, candidate.Port); err != nil {
					logger.Warn().Err(err).Str("host", candidate.Host).Int("port", candidate.Port).Msg("discovered node admission failed")
				}
			}
		}()
	}
	if shutdownDiscovery != nil {
		defer shutdownDiscovery()
	}

	if err := coord.Connect(); err != nil {
		logger.Warn().Err(err).Msg("initial connect pass had failures; reconnect scheduled")
	}

	logger.Info().
		Str("worker_addr", workerAddr).
		Str("admin_addr", adminAddr).
		Str("health_addr", healthAddr).
		Msg("taskmasterd ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
	return nil
}

// portOf extracts the numeric port from a "host:port" listen address.
func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("parse port in %q: %w", addr, err)
	}
	return port, nil
}

// listenTCP opens a TCP listener, wrapping the error with the address
// for easier diagnosis of a bind failure.
func listenTCP(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return ln, nil
}

// loadOrCreateMasterKeys reloads the Master's RSA identity from the
// store, generating and persisting one on first run.
func loadOrCreateMasterKeys(store storage.Store) (*security.KeyPair, error) {
	encrypted, err := store.GetMasterKey()
	if err == nil && len(encrypted) > 0 {
		der, err := security.Decrypt(encrypted)
		if err != nil {
			return nil, fmt.Errorf("decrypt master key: %w", err)
		}
		return security.LoadKeyPair(der)
	}

	keys, err := security.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate master key: %w", err)
	}
	der, err := keys.MarshalPrivateKey()
	if err != nil {
		return nil, err
	}
	encrypted, err = security.Encrypt(der)
	if err != nil {
		return nil, fmt.Errorf("encrypt master key: %w", err)
	}
	if err := store.SaveMasterKey(encrypted); err != nil {
		return nil, fmt.Errorf("persist master key: %w", err)
	}
	return keys, nil
}
