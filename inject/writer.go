package inject

import (
	"encoding/json"
	"fmt"
)

// ReactiveFieldWriter produces the JavaScript for one target framework.
// WriteJS must return an expression evaluating to
// {"found": bool, "how": string}; ReadJS must return an expression
// evaluating to the rendered value or null when the element is gone.
type ReactiveFieldWriter interface {
	WriteJS(f Field) string
	ReadJS(f Field) string
}

// ReactWriter writes into React-controlled inputs. Assigning element.value
// directly leaves React's internal state untouched and the framework
// reverts the DOM on the next render; the native prototype setter plus
// bubbled input/change events makes the framework adopt the value as if
// the user typed it.
type ReactWriter struct{}

// NewReactWriter returns the React implementation.
func NewReactWriter() *ReactWriter {
	return &ReactWriter{}
}

// findElementJS resolves the target element by priority: stable selector,
// then label text, then positional index among writable inputs.
func findElementJS(f Field) string {
	sel, _ := json.Marshal(f.SelectorHint)
	label, _ := json.Marshal(f.LabelText)
	return fmt.Sprintf(`(() => {
	const bySelector = %s;
	const byLabel = %s;
	const byIndex = %d;
	if (bySelector) {
		const el = document.querySelector(bySelector);
		if (el) return { el, how: "selector" };
	}
	if (byLabel) {
		const labels = Array.from(document.querySelectorAll("label"));
		const match = labels.find(l => l.textContent.trim() === byLabel);
		if (match) {
			const forId = match.getAttribute("for");
			const el = forId ? document.getElementById(forId)
				: match.querySelector("input, textarea, select");
			if (el) return { el, how: "label" };
		}
	}
	if (byIndex >= 0) {
		const inputs = Array.from(document.querySelectorAll("input, textarea, select"))
			.filter(el => !el.disabled && !el.readOnly);
		if (byIndex < inputs.length) return { el: inputs[byIndex], how: "position" };
	}
	return { el: null, how: "" };
})()`, sel, label, f.Position)
}

// WriteJS sets the value through the element prototype's native setter and
// dispatches bubbling input and change events.
func (w *ReactWriter) WriteJS(f Field) string {
	value, _ := json.Marshal(f.Value)
	return fmt.Sprintf(`(() => {
	const found = %s;
	if (!found.el) return JSON.stringify({ found: false, how: "" });
	const el = found.el;
	const value = %s;
	const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype
		: el instanceof HTMLSelectElement ? HTMLSelectElement.prototype
		: HTMLInputElement.prototype;
	const setter = Object.getOwnPropertyDescriptor(proto, "value").set;
	setter.call(el, value);
	el.dispatchEvent(new Event("input", { bubbles: true }));
	el.dispatchEvent(new Event("change", { bubbles: true }));
	return JSON.stringify({ found: true, how: found.how });
})()`, findElementJS(f), value)
}

// ReadJS re-reads the rendered value for confirmation.
func (w *ReactWriter) ReadJS(f Field) string {
	return fmt.Sprintf(`(() => {
	const found = %s;
	if (!found.el) return null;
	return found.el.value;
})()`, findElementJS(f))
}

// buttonLocateJS finds a button by its visible text and reports the
// viewport center of its bounding box. The coordinates feed a trusted
// CDP mouse click; synthetic element.click() events carry isTrusted=false
// and some handlers ignore them.
func buttonLocateJS(text string) string {
	quoted, _ := json.Marshal(text)
	return fmt.Sprintf(`(() => {
	const want = %s;
	const buttons = Array.from(document.querySelectorAll("button, [role=button]"));
	const match = buttons.find(b => b.textContent.trim() === want);
	if (!match) return JSON.stringify({ found: false, x: 0, y: 0 });
	const rect = match.getBoundingClientRect();
	return JSON.stringify({ found: true, x: rect.left + rect.width / 2, y: rect.top + rect.height / 2 });
})()`, quoted)
}

// buttonClickJS finds a button by its visible text and clicks it. The
// fallback when the scripter cannot dispatch raw input events.
func buttonClickJS(text string) string {
	quoted, _ := json.Marshal(text)
	return fmt.Sprintf(`(() => {
	const want = %s;
	const buttons = Array.from(document.querySelectorAll("button, [role=button]"));
	const match = buttons.find(b => b.textContent.trim() === want);
	if (!match) return false;
	match.click();
	return true;
})()`, quoted)
}
