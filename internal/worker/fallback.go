package worker

import (
	"net/http"

	"github.com/mmcdole/offlined/internal/domain"
)

// offlineAPIBody is returned for API requests when neither the network nor
// the API store can answer.
const offlineAPIBody = `{"success": false, "error": {"code": "OFFLINE", "message": "You are currently offline. Please check your internet connection."}}`

// offlinePageBody is the last-resort page. It is fully self-contained so it
// renders even when nothing was ever stored.
const offlinePageBody = `<!DOCTYPE html>
<html>
<head>
  <title>Offline - MindfulReplay</title>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <style>
    body {
      font-family: system-ui, sans-serif;
      text-align: center;
      padding: 2rem;
      background: #f9fafb;
    }
    .container {
      max-width: 400px;
      margin: 0 auto;
      background: white;
      padding: 2rem;
      border-radius: 8px;
      box-shadow: 0 1px 3px rgba(0,0,0,0.1);
    }
    h1 { color: #374151; margin-bottom: 1rem; }
    p { color: #6b7280; margin-bottom: 1.5rem; }
    button {
      background: #2563eb;
      color: white;
      border: none;
      padding: 0.75rem 1.5rem;
      border-radius: 6px;
      cursor: pointer;
      font-size: 1rem;
    }
    button:hover { background: #1d4ed8; }
  </style>
</head>
<body>
  <div class="container">
    <h1>You're Offline</h1>
    <p>It looks like you're not connected to the internet. Please check your connection and try again.</p>
    <button onclick="window.location.reload()">Try Again</button>
  </div>
</body>
</html>
`

func offlineAPISnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(offlineAPIBody),
	}
}

func offlinePageSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte(offlinePageBody),
	}
}
