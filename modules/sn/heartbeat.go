package sn

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/redcloud/files/modules"
)

// heartbeatPayload mirrors the body the metadata node's HTTP API expects
// at its SN-to-MN heartbeat endpoint (spec §4.8).
type heartbeatPayload struct {
	NodeID   string `json:"nodeId"`
	Address  string `json:"address"`
	Capacity uint64 `json:"capacity"`
	Used     uint64 `json:"used"`
}

// threadedHeartbeat periodically reports liveness and capacity to every
// metadata node discoverable through the metadata alias (spec §4.8).
func (n *Node) threadedHeartbeat() {
	if err := n.staticTG.Add(); err != nil {
		return
	}
	defer n.staticTG.Done()

	client := &http.Client{Timeout: n.staticConfig.HeartbeatDeadline}
	for {
		n.managedSendHeartbeats(client)
		select {
		case <-n.staticTG.StopChan():
			return
		case <-time.After(n.staticConfig.HeartbeatPeriod):
		}
	}
}

// managedSendHeartbeats resolves every metadata node behind the metadata
// alias and posts a heartbeat to each, so the fact reaches the cluster
// even before gossip relays it between metadata nodes (spec §4.4, §4.8).
func (n *Node) managedSendHeartbeats(client *http.Client) {
	used, err := n.staticStore.Usage()
	if err != nil {
		n.staticLog.Debugln("heartbeat: could not read usage:", err)
		return
	}

	body, err := json.Marshal(heartbeatPayload{
		NodeID:   n.staticNodeID,
		Address:  n.staticAddress.String(),
		Capacity: n.staticConfig.StorageCapacity,
		Used:     used,
	})
	if err != nil {
		return
	}

	hosts, err := net.LookupHost(n.staticConfig.MetadataAlias)
	if err != nil {
		n.staticLog.Debugln("heartbeat: alias lookup failed:", err)
		return
	}
	for _, host := range hosts {
		url := "http://" + net.JoinHostPort(host, n.staticConfig.MetadataAPIPort) + "/storage/heartbeat"
		resp, err := client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			n.staticLog.Debugln("heartbeat to", host, "failed:", err)
			continue
		}
		resp.Body.Close()
	}
}
