package cmd

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/EO-DataHub/eodhp-group-services/internal/appconfig"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"
)

type TunnelConfig struct {
	SSHUser        string
	SSHHost        string
	SSHPort        string
	RemoteHost     string
	RemotePort     string
	LocalPort      string
	PrivateKeyPath string
}

var tunnelCfg TunnelConfig

var tunnelCmd = &cobra.Command{
	Use:   "tunnel",
	Short: "Forward a local port to the configured database through an SSH bastion",
	Run: func(cmd *cobra.Command, args []string) {
		setLogging(logLevel)

		// Default the remote end to the database host from the config
		if tunnelCfg.RemoteHost == "" {
			cfg, err := appconfig.LoadConfig(configPath)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to load config")
			}
			tunnelCfg.RemoteHost, tunnelCfg.RemotePort, err = databaseHostPort(cfg.Database.URL)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to read database host from config")
			}
		}

		if err := StartSSHTunnel(&tunnelCfg); err != nil {
			log.Fatal().Err(err).Msg("SSH tunnel failed")
		}
	},
}

func init() {
	rootCmd.AddCommand(tunnelCmd)
	tunnelCmd.Flags().StringVar(&tunnelCfg.SSHUser, "ssh-user", "ec2-user", "user on the bastion host")
	tunnelCmd.Flags().StringVar(&tunnelCfg.SSHHost, "ssh-host", "", "bastion host")
	tunnelCmd.Flags().StringVar(&tunnelCfg.SSHPort, "ssh-port", "22", "bastion ssh port")
	tunnelCmd.Flags().StringVar(&tunnelCfg.RemoteHost, "remote-host", "", "database host, defaults to the host in the config")
	tunnelCmd.Flags().StringVar(&tunnelCfg.RemotePort, "remote-port", "5432", "database port")
	tunnelCmd.Flags().StringVar(&tunnelCfg.LocalPort, "local-port", "5432", "local port to listen on")
	tunnelCmd.Flags().StringVar(&tunnelCfg.PrivateKeyPath, "key", "", "path to the ssh private key")
	tunnelCmd.MarkFlagRequired("ssh-host")
	tunnelCmd.MarkFlagRequired("key")
}

// databaseHostPort extracts host and port from a database url, accepting a jdbc: prefix
func databaseHostPort(rawURL string) (string, string, error) {
	if len(rawURL) > 5 && rawURL[:5] == "jdbc:" {
		rawURL = rawURL[5:]
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", err
	}
	if u.Hostname() == "" {
		return "", "", fmt.Errorf("database url %q has no host", rawURL)
	}

	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return u.Hostname(), port, nil
}

// SSHClient creates a new SSH client
func SSHClient(config TunnelConfig) (*ssh.Client, error) {
	key, err := os.ReadFile(config.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}

	sshConfig := &ssh.ClientConfig{
		User: config.SSHUser,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // Don't verify host key (not recommended for production)
		Timeout:         5 * time.Second,
	}

	return ssh.Dial("tcp", net.JoinHostPort(config.SSHHost, config.SSHPort), sshConfig)
}

// ForwardTraffic forwards traffic from local to remote host
func ForwardTraffic(localListener net.Listener, client *ssh.Client, config TunnelConfig) {
	for {
		localConn, err := localListener.Accept()
		if err != nil {
			log.Error().Err(err).Msg("Failed to accept local connection")
			continue
		}

		remoteConn, err := client.Dial("tcp", net.JoinHostPort(config.RemoteHost, config.RemotePort))
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to remote host")
			localConn.Close()
			continue
		}

		go func() {
			defer localConn.Close()
			defer remoteConn.Close()

			go io.Copy(remoteConn, localConn)
			io.Copy(localConn, remoteConn)
		}()
	}
}

// StartSSHTunnel initializes the SSH tunnel and forwards traffic
func StartSSHTunnel(config *TunnelConfig) error {
	client, err := SSHClient(*config)
	if err != nil {
		return err
	}
	defer client.Close()

	localListener, err := net.Listen("tcp", net.JoinHostPort("localhost", config.LocalPort))
	if err != nil {
		return err
	}
	defer localListener.Close()

	log.Info().Msgf("SSH tunnel started on localhost:%s forwarding to %s:%s", config.LocalPort, config.RemoteHost, config.RemotePort)

	ForwardTraffic(localListener, client, *config)

	return nil
}
