package bridge

import (
	"context"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

// Mount is a component placed on the bootstrap page.
type Mount struct {
	ID       string
	Selector string
	Attrs    map[string]string
}

// PageData configures the bootstrap page.
type PageData struct {
	Title  string
	Path   string
	Mounts []Mount
}

type pageConfig struct {
	Path        string `json:"path"`
	Subprotocol string `json:"subprotocol"`
}

// Page renders a document that connects to the bridge at data.Path and
// mounts every entry of data.Mounts as a live component.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\"><title>"+
			templ.EscapeString(data.Title)+"</title></head><body>\n"); err != nil {
			return err
		}
		for _, m := range data.Mounts {
			if _, err := io.WriteString(w, mountTag(m)+"\n"); err != nil {
				return err
			}
		}
		cfg := pageConfig{Path: data.Path, Subprotocol: JSON.Subprotocol()}
		if err := templ.JSONScript("kiln-config", cfg).Render(ctx, w); err != nil {
			return err
		}
		tag := "<script>"
		if nonce := templ.GetNonce(ctx); nonce != "" {
			tag = `<script nonce="` + templ.EscapeString(nonce) + `">`
		}
		_, err := io.WriteString(w, tag+bootstrapScript+"</script>\n</body></html>\n")
		return err
	})
}

func mountTag(m Mount) string {
	tag := "<" + m.Selector + ` data-kiln-id="` + templ.EscapeString(m.ID) + `"`
	names := make([]string, 0, len(m.Attrs))
	for name := range m.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		tag += " " + templ.EscapeString(name) + `="` + templ.EscapeString(m.Attrs[name]) + `"`
	}
	return tag + "></" + m.Selector + ">"
}

// mountsFromQuery reads ?mount=<selector> parameters. Each further query
// parameter of the form <selector>.<attr>=<value> becomes an attribute of
// the mounts with that selector. Without mounts every known selector is
// placed once.
func mountsFromQuery(query map[string][]string, known []string) []Mount {
	selectors := query["mount"]
	if len(selectors) == 0 {
		selectors = known
	}
	valid := make(map[string]bool, len(known))
	for _, s := range known {
		valid[s] = true
	}

	var mounts []Mount
	for i, selector := range selectors {
		if !valid[selector] {
			continue
		}
		attrs := make(map[string]string)
		prefix := selector + "."
		for key, values := range query {
			if name, ok := strings.CutPrefix(key, prefix); ok && name != "" && len(values) > 0 {
				attrs[name] = values[0]
			}
		}
		mounts = append(mounts, Mount{
			ID:       "m" + strconv.Itoa(i),
			Selector: selector,
			Attrs:    attrs,
		})
	}
	return mounts
}

const bootstrapScript = `(() => {
  const cfg = JSON.parse(document.getElementById("kiln-config").textContent);
  const url = new URL(cfg.path, location.href);
  url.protocol = location.protocol === "https:" ? "wss:" : "ws:";
  const ws = new WebSocket(url, [cfg.subprotocol]);
  const hosts = new Map();
  const listening = new Map();
  const send = (m) => { if (ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify(m)); };
  const skip = (n) => n.nodeType === 1 && n.hasAttribute("data-kiln-style");
  const index = (n) => [...n.parentNode.childNodes].filter((c) => !skip(c)).indexOf(n);
  const pathOf = (host, node) => {
    const parts = [];
    let cur = node;
    while (cur && cur !== host.shadowRoot) {
      if (cur instanceof ShadowRoot) { parts.push("s"); cur = cur.host; continue; }
      parts.push(index(cur));
      cur = cur.parentNode;
    }
    return cur ? parts.reverse().join("/") : null;
  };
  const listen = (id, el, bindings) => {
    const seen = listening.get(id) || new Set();
    listening.set(id, seen);
    for (const b of bindings) {
      if (seen.has(b.event)) continue;
      seen.add(b.event);
      el.shadowRoot.addEventListener(b.event, (e) => {
        const target = pathOf(el, e.composedPath()[0]);
        if (target !== null) send({ type: "event", id, event: b.event, target, detail: e.detail ?? null });
      });
    }
  };
  const mount = (el) => {
    const id = el.dataset.kilnId;
    hosts.set(id, el);
    if (!el.shadowRoot) el.attachShadow({ mode: "open" });
    const attrs = {};
    for (const a of el.attributes) if (!a.name.startsWith("data-kiln")) attrs[a.name] = a.value;
    send({ type: "mount", id, selector: el.localName, attrs });
    new MutationObserver((ms) => ms.forEach((m) => {
      if (m.attributeName.startsWith("data-kiln")) return;
      send({ type: "attr", id, name: m.attributeName, value: el.getAttribute(m.attributeName) ?? "" });
    })).observe(el, { attributes: true });
    new IntersectionObserver((es) => es.forEach((e) => send({ type: "visible", id, visible: e.isIntersecting }))).observe(el);
  };
  ws.onopen = () => document.querySelectorAll("[data-kiln-id]").forEach(mount);
  ws.onmessage = (ev) => {
    const p = JSON.parse(ev.data);
    const el = hosts.get(p.id);
    switch (p.type) {
      case "patch":
        if (!el) return;
        el.shadowRoot.setHTMLUnsafe(p.html || "");
        listen(p.id, el, p.bindings || []);
        break;
      case "emit":
        if (el) el.dispatchEvent(new CustomEvent(p.name, { detail: p.detail, bubbles: true, composed: true }));
        break;
      case "error":
        console.warn("kiln", p.id || "", p.error);
        break;
    }
  };
})();`
