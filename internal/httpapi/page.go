package httpapi

const indexPage = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Bookshelf</title>
<script src="https://telegram.org/js/telegram-web-app.js"></script>
<style>
body { font-family: system-ui, sans-serif; margin: 0; padding: 1rem; display: grid; gap: 1rem; grid-template-columns: 2fr 1fr; }
header { grid-column: 1 / -1; display: flex; gap: .5rem; }
header input { flex: 1; padding: .5rem; font-size: 1rem; }
.results { display: grid; gap: .75rem; grid-template-columns: repeat(auto-fill, minmax(180px, 1fr)); }
.book, .favorite { border: 1px solid #ddd; border-radius: 6px; padding: .5rem; list-style: none; }
.book img, .favorite img, .details img { width: 128px; height: 195px; object-fit: cover; }
.favorites-list { padding: 0; display: grid; gap: .5rem; }
.authors, .meta, .empty { color: #666; }
.error { color: #b00020; }
</style>
</head>
<body>
<header>
  <input id="query" type="search" placeholder="Search books" autocomplete="off">
  <button id="search" type="button">Search</button>
</header>
<main>
  <div id="results" class="results"></div>
  <div id="details" class="details"></div>
</main>
<aside>
  <h2>Favorites</h2>
  <div id="favorites" class="favorites" data-state="empty"><p class="empty">No favorites yet.</p></div>
</aside>
<script>
(function () {
  var tg = window.Telegram && window.Telegram.WebApp;
  var initData = (tg && tg.initData) || "";
  if (tg) { tg.ready(); }

  function api(path, opts) {
    opts = opts || {};
    opts.headers = Object.assign({}, opts.headers || {});
    if (initData) { opts.headers["X-Telegram-InitData"] = initData; }
    return fetch(path, opts);
  }

  function swap(id, path) {
    return api(path).then(function (res) { return res.text(); }).then(function (html) {
      var el = document.getElementById(id);
      if (el) { el.outerHTML = html; }
    });
  }

  var socket = null;
  function connect() {
    var proto = location.protocol === "https:" ? "wss:" : "ws:";
    var url = proto + "//" + location.host + "/ws/favorites";
    if (initData) { url += "?initData=" + encodeURIComponent(initData); }
    socket = new WebSocket(url);
    socket.onmessage = function (ev) {
      var el = document.getElementById("favorites");
      if (el) { el.outerHTML = ev.data; }
    };
    socket.onclose = function () { socket = null; setTimeout(connect, 3000); };
  }

  function refreshPanel() {
    if (!socket || socket.readyState !== WebSocket.OPEN) {
      return swap("favorites", "/fragments/favorites");
    }
  }

  function search() {
    var q = document.getElementById("query").value.trim();
    if (!q) { return; }
    swap("results", "/fragments/results?q=" + encodeURIComponent(q));
  }

  document.getElementById("search").addEventListener("click", search);
  document.getElementById("query").addEventListener("keydown", function (ev) {
    if (ev.key === "Enter") { search(); }
  });

  document.addEventListener("click", function (ev) {
    var el = ev.target.closest("[data-action]");
    if (!el) { return; }
    var id = el.getAttribute("data-id");
    switch (el.getAttribute("data-action")) {
    case "details":
      swap("details", "/fragments/books/" + encodeURIComponent(id));
      break;
    case "add":
      api("/api/favorites", {
        method: "POST",
        headers: {"Content-Type": "application/json"},
        body: JSON.stringify({id: id})
      }).then(refreshPanel);
      break;
    case "remove":
      api("/api/favorites/" + encodeURIComponent(id), {method: "DELETE"}).then(refreshPanel);
      break;
    }
  });

  swap("favorites", "/fragments/favorites");
  connect();
})();
</script>
</body>
</html>
`
