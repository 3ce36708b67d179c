package coordinator

import (
	"fmt"

	"github.com/cuemby/taskmaster/pkg/types"
)

// OnDiscovered handles one (host, port) candidate emitted by the
// discovery listener (§6). If multicast_all is set, the endpoint is
// inserted into the node store immediately and a Connect pass is
// triggered; otherwise it is held in known_nodes for admin-driven
// promotion via PromoteNode.
func (c *Coordinator) OnDiscovered(host string, port int) error {
	addr := types.NodeKey(host, port)

	c.lock.Lock()
	if _, exists := c.nodeByAddr[addr]; exists {
		c.lock.Unlock()
		return nil // already a known node
	}
	multicastAll := c.multicastAll
	if !multicastAll {
		c.known[addr] = true
	}
	c.lock.Unlock()

	if !multicastAll {
		return nil
	}
	return c.createNodeAndConnect(host, port)
}

// PromoteNode moves an endpoint out of known_nodes into the node store
// and triggers a Connect pass, for the admin-driven path when
// multicast_all is false (§6).
func (c *Coordinator) PromoteNode(host string, port int) error {
	addr := types.NodeKey(host, port)
	c.lock.Lock()
	delete(c.known, addr)
	c.lock.Unlock()
	return c.createNodeAndConnect(host, port)
}

func (c *Coordinator) createNodeAndConnect(host string, port int) error {
	node := &types.Node{
		ID:        types.NodeKey(host, port),
		Host:      host,
		Port:      port,
		CreatedAt: c.now(),
	}
	if err := c.store.CreateNode(node); err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	c.lock.Lock()
	c.nodeByAddr[node.Key()] = node.ID
	c.lock.Unlock()

	return c.Connect()
}
