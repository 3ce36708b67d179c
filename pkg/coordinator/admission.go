package coordinator

import (
	"crypto/rand"
	"fmt"

	"github.com/cuemby/taskmaster/pkg/events"
	"github.com/cuemby/taskmaster/pkg/security"
	"github.com/cuemby/taskmaster/pkg/types"
)

// challengeNonceSize is the length, in bytes, of the random nonce the
// Master asks a node to sign at admission time (§4.2 step 3).
const challengeNonceSize = 32

// onConnected runs the node admission protocol of §4.2 once a node has
// logged in: fetch its key, resolve trust-on-first-use, prove the node
// actually holds the matching private key via a signed challenge, run
// info, then register worker credentials before telling the node to
// init.
func (c *Coordinator) onConnected(node *types.Node, conn NodeConn) {
	key, err := conn.GetKey()
	if err != nil {
		c.logger.Error().Err(err).Str("node_id", node.ID).Msg("get_key failed")
		_ = conn.Close()
		c.markDisconnected(node.ID)
		return
	}

	duplicate, err := c.ReceiveNodeKey(node, key)
	if err != nil {
		c.logger.Error().Err(err).Str("node_id", node.ID).Msg("key admission failed")
		_ = conn.Close()
		c.markDisconnected(node.ID)
		return
	}
	if duplicate {
		_ = conn.Close()
		c.logger.Warn().Str("node_id", node.ID).Msg("duplicate node key; node dropped")
		return
	}

	if err := c.authenticateNode(node, key, conn); err != nil {
		c.logger.Error().Err(err).Str("node_id", node.ID).Msg("node failed challenge authentication")
		_ = conn.Close()
		c.lock.Lock()
		_ = c.dropNodeLocked(node.ID, "challenge authentication failed")
		c.lock.Unlock()
		return
	}

	c.lock.Lock()
	if h, ok := c.nodes[node.ID]; ok {
		h.state = stateAuthenticated
	}
	c.lock.Unlock()

	cores, cpu, mem, err := conn.Info()
	if err != nil {
		c.logger.Error().Err(err).Str("node_id", node.ID).Msg("info failed")
		_ = conn.Close()
		c.markDisconnected(node.ID)
		return
	}
	node.Cores, node.CPUSpeed, node.Memory = cores, cpu, mem
	if err := c.store.UpdateNode(node); err != nil {
		c.logger.Error().Err(err).Str("node_id", node.ID).Msg("persist node info failed")
	}

	// Worker credentials must exist before init, or worker logins racing
	// init would be refused (§4.2 invariant).
	c.RegisterNodeWorkers(node)

	masterKey, err := c.keys.PublicKeyBytes()
	if err != nil {
		c.logger.Error().Err(err).Msg("encode master public key failed")
		return
	}
	if err := conn.Init(c.masterHost, c.masterPort, masterKey); err != nil {
		c.logger.Error().Err(err).Str("node_id", node.ID).Msg("init failed")
		_ = conn.Close()
		c.markDisconnected(node.ID)
		return
	}

	c.lock.Lock()
	if h, ok := c.nodes[node.ID]; ok {
		h.state = stateReady
	}
	c.lock.Unlock()

	c.publish(&events.Event{Type: events.EventNodePaired, NodeID: node.ID})
}

// ReceiveNodeKey resolves trust-on-first-use for a key presented by node
// (§4.2 steps 2-3). It reports duplicate=true if the key belongs to a
// different, already-paired node, in which case this node's record has
// been deleted. Otherwise the key is verified against (if paired) or
// accepted and persisted as (if unpaired) the node's stored key.
func (c *Coordinator) ReceiveNodeKey(node *types.Node, key []byte) (duplicate bool, err error) {
	nodes, err := c.store.ListNodes()
	if err != nil {
		return false, fmt.Errorf("list nodes: %w", err)
	}

	if !node.Paired() {
		for _, other := range nodes {
			if other.ID == node.ID || !other.Paired() {
				continue
			}
			if security.SameKey(other.PubKey, key) {
				c.lock.Lock()
				_ = c.dropNodeLocked(node.ID, "duplicate node key")
				c.lock.Unlock()
				c.publish(&events.Event{Type: events.EventNodeDuplicate, NodeID: node.ID})
				return true, nil
			}
		}
		// TOFU: accept and persist the first key this node presents.
		node.PubKey = key
		if err := c.store.UpdateNode(node); err != nil {
			return false, fmt.Errorf("persist node key: %w", err)
		}
		return false, nil
	}

	if !security.SameKey(node.PubKey, key) {
		return false, fmt.Errorf("node %s presented a key different from its paired key", node.ID)
	}
	return false, nil
}

// authenticateNode performs the RSA mutual-authentication step of §4.2
// step 3: the Master sends a random nonce and verifies that the node can
// sign it with the private key matching the public key just admitted by
// ReceiveNodeKey. A node that cannot produce a valid signature never
// proved possession of that key and is not trusted, TOFU or not.
func (c *Coordinator) authenticateNode(node *types.Node, key []byte, conn NodeConn) error {
	pub, err := security.ParsePublicKey(key)
	if err != nil {
		return fmt.Errorf("parse presented key: %w", err)
	}

	nonce := make([]byte, challengeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate challenge nonce: %w", err)
	}

	sig, err := conn.Challenge(nonce)
	if err != nil {
		return fmt.Errorf("challenge request: %w", err)
	}

	if err := security.VerifySignature(pub, nonce, sig); err != nil {
		return fmt.Errorf("%s: %w", node.ID, err)
	}
	return nil
}
