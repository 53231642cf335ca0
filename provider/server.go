package provider

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/rkeyd/rkeyd/constants"
	"github.com/rkeyd/rkeyd/types"
)

// ServerProvider fetches the secret for a volume from a remote key
// server over ssh, authenticating with the local identity key of its
// configured slot. One fixed remote command, no retry: retrying across
// slots is the coordinator's business.
type ServerProvider struct {
	Address      string // [user@]host[:port]
	IdentitySlot int
	IdentityBase string
	User         string
	Timeout      time.Duration
	FS           types.FS
	Log          types.RkeydLogger

	// RunRemote can be swapped in tests, nil means a real ssh session.
	RunRemote func(addr string, cfg *ssh.ClientConfig, cmd string) ([]byte, error)
}

func (p *ServerProvider) Fetch(volume string) ([]byte, error) {
	if volume == "" || p.Address == "" || p.IdentitySlot < 1 {
		return nil, nil
	}

	keyPath := fmt.Sprintf("%s-%d", p.IdentityBase, p.IdentitySlot)
	pem, err := p.FS.ReadFile(keyPath)
	if err != nil {
		p.Log.Logger.Debug().Str("identity", keyPath).Err(err).Msg("no identity key for slot")
		return nil, nil
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		p.Log.Logger.Debug().Str("identity", keyPath).Err(err).Msg("unparseable identity key")
		return nil, nil
	}

	user, addr := splitAddress(p.Address, p.User)
	cfg := &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{ssh.PublicKeys(signer)},
		// The key server speaks from inside the initramfs trust domain,
		// there is no known_hosts store this early in boot
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.Timeout,
	}

	run := p.RunRemote
	if run == nil {
		run = sshRun
	}
	out, err := run(addr, cfg, fmt.Sprintf("cat %s%s", constants.DeviceKeyPrefix, volume))
	if err != nil {
		p.Log.Logger.Debug().Str("server", addr).Err(err).Msg("remote secret fetch failed")
		return nil, nil
	}

	secret := bytes.TrimSpace(out)
	if len(secret) == 0 {
		return nil, nil
	}
	return secret, nil
}

// splitAddress breaks "[user@]host[:port]" apart, adding port 22 if not
// specified.
func splitAddress(address, defaultUser string) (string, string) {
	user := defaultUser
	host := address
	if at := strings.Index(address, "@"); at >= 0 {
		user = address[:at]
		host = address[at+1:]
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "22")
	}
	return user, host
}

func sshRun(addr string, cfg *ssh.ClientConfig, cmd string) ([]byte, error) {
	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return session.Output(cmd)
}
