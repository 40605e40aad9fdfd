package rewrite

import (
	"bytes"
	"strings"
)

const closingBodyTag = "</body>"

// Snippet is the instrumentation script inserted into injectable HTML
// responses. It mirrors the previewed application's console output and
// uncaught errors to the embedding page via postMessage, without requiring
// any change to the application's own source.
//
// Message shapes posted to the parent window:
//
//	{type:'console', level:'log'|'error'|'warning', message:string}
//	{type:'preview-error', message:string, source?:string, line?:number, column?:number}
const Snippet = `<script>
(function () {
  if (window.__previewInstrumented) return;
  window.__previewInstrumented = true;
  function post(msg) {
    try { window.parent.postMessage(msg, '*'); } catch (e) {}
  }
  function format(args) {
    return Array.prototype.map.call(args, function (a) {
      if (typeof a === 'object' && a !== null) {
        try { return JSON.stringify(a); } catch (e) { return String(a); }
      }
      return String(a);
    }).join(' ');
  }
  ['log', 'error', 'warn'].forEach(function (name) {
    var original = console[name];
    var level = name === 'warn' ? 'warning' : name;
    console[name] = function () {
      post({ type: 'console', level: level, message: format(arguments) });
      original.apply(console, arguments);
    };
  });
  window.addEventListener('error', function (e) {
    post({
      type: 'preview-error',
      message: e.message,
      source: e.filename,
      line: e.lineno,
      column: e.colno
    });
  });
  window.addEventListener('unhandledrejection', function (e) {
    post({ type: 'preview-error', message: String(e.reason) });
  });
})();
</script>`

// Injectable reports whether the response for path should receive the
// instrumentation snippet. Directory-style paths and explicit .html documents
// qualify; everything else streams through untouched.
func Injectable(path string) bool {
	return path == "/" || strings.HasSuffix(path, "/") || strings.HasSuffix(path, ".html")
}

// Inject inserts the snippet immediately before the last closing body tag, or
// appends it at the end when the document has none.
func Inject(body []byte) []byte {
	out := make([]byte, 0, len(body)+len(Snippet))
	if i := bytes.LastIndex(body, []byte(closingBodyTag)); i >= 0 {
		out = append(out, body[:i]...)
		out = append(out, Snippet...)
		out = append(out, body[i:]...)
		return out
	}
	out = append(out, body...)
	out = append(out, Snippet...)
	return out
}
