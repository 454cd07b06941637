package executor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RefAttribute marks elements that a snapshot gave a ref to.
const RefAttribute = "data-mcp-ref"

var refPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// snapshotNode is one element in the accessibility tree collected by
// snapshotScript.
type snapshotNode struct {
	Role     string         `json:"role"`
	Name     string         `json:"name,omitempty"`
	Ref      string         `json:"ref,omitempty"`
	Value    string         `json:"value,omitempty"`
	Children []snapshotNode `json:"children,omitempty"`
}

// snapshotScript walks the visible DOM, assigns refs to interactive
// elements and returns the tree as a JSON string. It takes the ref prefix.
const snapshotScript = `(prefix) => {
  document.querySelectorAll('[` + RefAttribute + `]').forEach(el => el.removeAttribute('` + RefAttribute + `'));
  let counter = 0;
  const implicitRoles = {
    A: 'link', BUTTON: 'button', SELECT: 'combobox', TEXTAREA: 'textbox',
    H1: 'heading', H2: 'heading', H3: 'heading', H4: 'heading', H5: 'heading', H6: 'heading',
    NAV: 'navigation', MAIN: 'main', HEADER: 'banner', FOOTER: 'contentinfo', FORM: 'form',
    UL: 'list', OL: 'list', LI: 'listitem', IMG: 'img', TABLE: 'table', TR: 'row', TD: 'cell',
    TH: 'columnheader', DIALOG: 'dialog', P: 'paragraph', LABEL: 'label', OPTION: 'option'
  };
  const inputRoles = { checkbox: 'checkbox', radio: 'radio', button: 'button', submit: 'button', reset: 'button', range: 'slider', search: 'searchbox' };
  const interactive = new Set(['link', 'button', 'combobox', 'textbox', 'searchbox', 'checkbox', 'radio', 'slider', 'option', 'tab', 'menuitem', 'switch']);
  const skip = new Set(['SCRIPT', 'STYLE', 'NOSCRIPT', 'TEMPLATE', 'META', 'LINK', 'HEAD']);

  const visible = (el) => {
    const style = window.getComputedStyle(el);
    if (style.display === 'none' || style.visibility === 'hidden') return false;
    const rect = el.getBoundingClientRect();
    return rect.width > 0 || rect.height > 0 || el.children.length > 0;
  };
  const roleOf = (el) => {
    const explicit = el.getAttribute('role');
    if (explicit) return explicit;
    if (el.tagName === 'INPUT') return inputRoles[(el.type || 'text').toLowerCase()] || 'textbox';
    return implicitRoles[el.tagName] || '';
  };
  const nameOf = (el) => {
    const label = el.getAttribute('aria-label') || el.getAttribute('alt') || el.getAttribute('title') || el.getAttribute('placeholder');
    if (label) return label.trim();
    if (el.id) {
      const forLabel = document.querySelector('label[for="' + CSS.escape(el.id) + '"]');
      if (forLabel) return forLabel.innerText.trim();
    }
    return '';
  };
  const ownText = (el) => Array.from(el.childNodes)
    .filter(n => n.nodeType === Node.TEXT_NODE)
    .map(n => n.textContent.trim())
    .filter(Boolean)
    .join(' ');

  const walk = (el) => {
    if (skip.has(el.tagName) || !visible(el)) return [];
    const children = [];
    for (const child of el.children) children.push(...walk(child));
    const role = roleOf(el);
    const text = ownText(el);
    if (!role) {
      if (text) children.unshift({ role: 'text', name: text.slice(0, 200) });
      return children;
    }
    const node = { role, name: (nameOf(el) || (interactive.has(role) ? (el.innerText || '').trim() : text)).slice(0, 200) };
    if (interactive.has(role) || role === 'heading') {
      counter += 1;
      node.ref = prefix + counter;
      el.setAttribute('` + RefAttribute + `', node.ref);
    }
    if ('value' in el && typeof el.value === 'string' && el.value && role !== 'button') node.value = el.value.slice(0, 200);
    if (children.length && !interactive.has(role)) node.children = children;
    return [node];
  };
  return JSON.stringify(document.body ? walk(document.body) : []);
}`

// parseSnapshot decodes the JSON produced by snapshotScript.
func parseSnapshot(raw string) ([]snapshotNode, error) {
	var nodes []snapshotNode
	if err := json.Unmarshal([]byte(raw), &nodes); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return nodes, nil
}

// renderSnapshot formats nodes as a YAML list in the style of an ARIA
// snapshot: leaves are `role "name" [ref=...]` scalars and containers map
// that label to their children.
func renderSnapshot(nodes []snapshotNode) (string, error) {
	if len(nodes) == 0 {
		return "", nil
	}
	out, err := yaml.Marshal(snapshotSequence(nodes))
	if err != nil {
		return "", fmt.Errorf("render snapshot: %w", err)
	}
	return string(out), nil
}

func snapshotSequence(nodes []snapshotNode) *yaml.Node {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, n := range nodes {
		label := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: nodeLabel(n)}
		if len(n.Children) == 0 {
			seq.Content = append(seq.Content, label)
			continue
		}
		seq.Content = append(seq.Content, &yaml.Node{
			Kind:    yaml.MappingNode,
			Content: []*yaml.Node{label, snapshotSequence(n.Children)},
		})
	}
	return seq
}

func nodeLabel(n snapshotNode) string {
	var b strings.Builder
	b.WriteString(n.Role)
	if n.Name != "" {
		fmt.Fprintf(&b, " %q", n.Name)
	}
	if n.Ref != "" {
		fmt.Fprintf(&b, " [ref=%s]", n.Ref)
	}
	if n.Value != "" {
		fmt.Fprintf(&b, ": %s", n.Value)
	}
	return b.String()
}

// refSelector turns a snapshot ref into a CSS selector.
func refSelector(ref string) (string, error) {
	if !refPattern.MatchString(ref) {
		return "", fmt.Errorf("invalid element ref %q: take a new snapshot and use one of its refs", ref)
	}
	return fmt.Sprintf(`[%s="%s"]`, RefAttribute, ref), nil
}
