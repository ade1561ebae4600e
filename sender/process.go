package sender

import (
	"net"
	"os"
	"sort"

	"github.com/jaegertracing/jaeger/thrift-gen/jaeger"

	"github.com/census-instrumentation/jaeger-udp-client/collector"
)

// Version of this client, reported in every batch.
const Version = "0.1.0"

const (
	clientVersionTagKey = "jaeger.version"
	hostnameTagKey      = "hostname"
	ipTagKey            = "ip"
)

// buildProcess computes the process metadata once. The ip tag is omitted when
// no non-loopback IPv4 address can be found.
func buildProcess(serviceName string, extra map[string]interface{}) *jaeger.Process {
	tags := []*jaeger.Tag{collector.BuildTag(clientVersionTagKey, "Go-"+Version)}
	if hostname, err := os.Hostname(); err == nil {
		tags = append(tags, collector.BuildTag(hostnameTagKey, hostname))
	}
	if ip := localIPv4(); ip != nil {
		tags = append(tags, collector.BuildTag(ipTagKey, ip.String()))
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tags = append(tags, collector.BuildTag(k, extra[k]))
	}
	return &jaeger.Process{ServiceName: serviceName, Tags: tags}
}

func localIPv4() net.IP {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}
