package http

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/melih/aetherhost/internal/core/domain"
	"github.com/melih/aetherhost/internal/core/ports"
)

// ProxyHandler routes <app>.<base domain> to the container serving that app.
type ProxyHandler struct {
	service    ports.ContainerService
	baseDomain string
}

// NewProxyHandler creates a proxy for hosts under baseDomain, e.g. "localhost".
func NewProxyHandler(service ports.ContainerService, baseDomain string) *ProxyHandler {
	return &ProxyHandler{service: service, baseDomain: strings.ToLower(baseDomain)}
}

// subdomain returns the app label of host, or "" when host is not an app host.
func (h *ProxyHandler) subdomain(host string) string {
	if hostOnly, _, err := net.SplitHostPort(host); err == nil {
		host = hostOnly
	}
	host = strings.ToLower(host)
	if h.baseDomain == "" || !strings.HasSuffix(host, "."+h.baseDomain) {
		return ""
	}
	label := strings.TrimSuffix(host, "."+h.baseDomain)
	if label == "" || label == "www" || strings.Contains(label, ".") {
		return ""
	}
	return label
}

// matchesApp accepts the container name itself or its DNS-safe form, since
// hostnames cannot carry the underscores in generated names.
func matchesApp(c domain.Container, label string) bool {
	name := strings.ToLower(c.Name)
	return name == label || strings.ReplaceAll(name, "_", "-") == label
}

// ProxyRequest passes non-app hosts down the chain and reverse proxies app
// hosts to the container's bridge IP.
func (h *ProxyHandler) ProxyRequest(c *fiber.Ctx) error {
	label := h.subdomain(c.Hostname())
	if label == "" {
		return c.Next()
	}

	containers, err := h.service.ListContainers(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to list containers")
	}

	var target domain.Container
	for _, container := range containers {
		if matchesApp(container, label) && container.IsRunning() && container.IPAddress != "" {
			target = container
			break
		}
	}
	if target.ID == "" {
		return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("App '%s' not found or not running", label))
	}

	remote, err := url.Parse("http://" + target.IPAddress)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}

	proxy := httputil.NewSingleHostReverseProxy(remote)
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		// Apps inside the container expect their own address, not the public host.
		req.Host = remote.Host
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("[proxy] %s -> %s: %v", label, target.IPAddress, err)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("Bad gateway"))
	}

	return adaptor.HTTPHandler(proxy)(c)
}
