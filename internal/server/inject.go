package server

import (
	"bytes"
)

// reloadScript reconnects after the server restarts and reloads on
// full_reload. Build errors are reported in the browser console.
const reloadScript = `<script data-mailwright-reload>
(function () {
  var scheme = location.protocol === 'https:' ? 'wss:' : 'ws:';
  function connect() {
    var ws = new WebSocket(scheme + '//' + location.host + '` + ReloadPath + `');
    ws.onmessage = function (event) {
      var message = JSON.parse(event.data);
      if (message.type === 'full_reload') {
        location.reload();
      } else if (message.type === 'build_error') {
        console.error('[mailwright] build failed:\n' + message.content);
      }
    };
    ws.onclose = function () { setTimeout(connect, 2000); };
  }
  connect();
})();
</script>
`

var closingBody = []byte("</body>")

// InjectReloadScript inserts the reload client before the last </body>,
// matched case-insensitively, or appends it when the page has none.
func InjectReloadScript(page []byte) []byte {
	idx := lastIndexFold(page, closingBody)
	if idx < 0 {
		out := make([]byte, 0, len(page)+len(reloadScript))
		out = append(out, page...)
		return append(out, reloadScript...)
	}

	out := make([]byte, 0, len(page)+len(reloadScript))
	out = append(out, page[:idx]...)
	out = append(out, reloadScript...)
	return append(out, page[idx:]...)
}

func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}
