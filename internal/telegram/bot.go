package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"bookshelf/internal/favorites"
	"bookshelf/internal/models"
	"bookshelf/internal/render"
	"bookshelf/internal/storage"
)

// Catalog is what the bot needs from the catalog client.
type Catalog interface {
	Search(ctx context.Context, query string) ([]models.BookSummary, error)
	FetchDetails(ctx context.Context, id string) (models.BookDetails, error)
}

// api is the subset of *tgbotapi.BotAPI the bot talks to.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api        api
	catalog    Catalog
	favorites  *favorites.Registry
	miniAppURL string
	logger     *zap.Logger

	sessions   map[int64]*searchSession
	sessionsMu sync.Mutex
}

type searchSession struct {
	books    []models.BookSummary
	page     int
	pageSize int
}

const (
	defaultPageSize = 8

	// Telegram limits.
	captionLimit = 1024
	messageLimit = 4096

	cbBookPrefix    = "book:"
	cbPagePrefix    = "page:"
	cbFavAdd        = "fav:add:"
	cbFavRemove     = "fav:rm:"
	cbFavListRemove = "fav:del:"
)

func NewBot(token string, catalog Catalog, registry *favorites.Registry, miniAppURL string, logger *zap.Logger) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram bot authorized", zap.String("username", botAPI.Self.UserName))
	return newBot(botAPI, catalog, registry, miniAppURL, logger), nil
}

func newBot(a api, catalog Catalog, registry *favorites.Registry, miniAppURL string, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:        a,
		catalog:    catalog,
		favorites:  registry,
		miniAppURL: miniAppURL,
		logger:     logger,
		sessions:   make(map[int64]*searchSession),
	}
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			b.sendStart(chatID)
		case "favorites":
			b.sendFavorites(ctx, chatID, userKey(msg.From))
		default:
			b.sendMessage(chatID, "Unknown command. Send a book title to search.")
		}
		return
	}

	query := strings.TrimSpace(msg.Text)
	if query == "" {
		return
	}

	books, err := b.catalog.Search(ctx, query)
	if err != nil {
		b.logger.Warn("telegram search failed", zap.String("query", query), zap.Error(err))
		b.sendMessage(chatID, "❌ "+render.SearchFailed)
		return
	}
	if len(books) == 0 {
		b.sendMessage(chatID, "😔 "+render.NoResults)
		return
	}

	b.storeSession(chatID, books)
	b.sendBooksPage(chatID, 0)
}

func (b *Bot) sendStart(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "Hi! Send me a book title and I'll look it up.\n/favorites shows your saved books.")
	if b.miniAppURL != "" {
		msg.ReplyMarkup = miniAppMarkup(b.miniAppURL)
	}
	b.send(msg)
}

func (b *Bot) storeSession(chatID int64, books []models.BookSummary) {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()

	b.sessions[chatID] = &searchSession{
		books:    books,
		page:     0,
		pageSize: defaultPageSize,
	}
}

func clampPage(page, totalPages int) int {
	if totalPages <= 0 {
		return 0
	}
	if page < 0 {
		return 0
	}
	if page >= totalPages {
		return totalPages - 1
	}
	return page
}

func totalPages(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// buildPage renders one page of the chat's search session and remembers it
// as the current page.
func (b *Bot) buildPage(chatID int64, page int) (string, tgbotapi.InlineKeyboardMarkup, bool) {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()

	session, ok := b.sessions[chatID]
	if !ok || len(session.books) == 0 {
		return "", tgbotapi.InlineKeyboardMarkup{}, false
	}

	total := len(session.books)
	pages := totalPages(total, session.pageSize)
	page = clampPage(page, pages)
	session.page = page

	start := page * session.pageSize
	end := min(start+session.pageSize, total)

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, book := range session.books[start:end] {
		btn := tgbotapi.NewInlineKeyboardButtonData(bookLabel(book.Title, book.Authors), cbBookPrefix+book.ID)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}

	if pages > 1 {
		var nav []tgbotapi.InlineKeyboardButton
		if page > 0 {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", cbPagePrefix+strconv.Itoa(page-1)))
		}
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("• %d/%d •", page+1, pages),
			cbPagePrefix+strconv.Itoa(page),
		))
		if page < pages-1 {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", cbPagePrefix+strconv.Itoa(page+1)))
		}
		rows = append(rows, nav)
	}

	text := fmt.Sprintf("📚 Found %d books\nPage %d/%d", total, page+1, pages)
	return text, tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

func (b *Bot) sendBooksPage(chatID int64, page int) {
	text, markup, ok := b.buildPage(chatID, page)
	if !ok {
		b.sendMessage(chatID, "⚠️ These results are stale. Please search again.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	b.send(msg)
}

func (b *Bot) editBooksPage(chatID int64, messageID int, page int) {
	text, markup, ok := b.buildPage(chatID, page)
	if !ok {
		b.sendMessage(chatID, "⚠️ These results are stale. Please search again.")
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ReplyMarkup = &markup
	b.send(edit)
}

func (b *Bot) sendBookDetails(ctx context.Context, chatID int64, key string, bookID string) {
	details, err := b.catalog.FetchDetails(ctx, bookID)
	if err != nil {
		b.logger.Warn("telegram details failed", zap.String("id", bookID), zap.Error(err))
		b.sendMessage(chatID, "❌ "+render.DetailsFailed)
		return
	}
	if details.ID == "" {
		details.ID = bookID
	}

	saved := b.favorites.For(key).Contains(ctx, details.ID)
	markup := detailsKeyboard(details, saved)

	if details.Thumbnail != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(details.Thumbnail))
		photo.Caption = detailsCaption(details, captionLimit)
		photo.ReplyMarkup = markup
		_, err := b.api.Send(photo)
		if err == nil {
			return
		}
		b.logger.Debug("cover upload failed, sending text", zap.String("id", bookID), zap.Error(err))
	}

	msg := tgbotapi.NewMessage(chatID, detailsCaption(details, messageLimit))
	msg.ReplyMarkup = markup
	b.send(msg)
}

func (b *Bot) sendFavorites(ctx context.Context, chatID int64, key string) {
	text, markup := favoritesView(b.favorites.For(key).List(ctx))
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	b.send(msg)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	key := userKey(cb.From)
	data := cb.Data

	switch {
	case strings.HasPrefix(data, cbPagePrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(data, cbPagePrefix))
		if err != nil {
			b.answer(cb.ID, "")
			b.logger.Warn("invalid page callback", zap.String("data", data))
			return
		}
		b.answer(cb.ID, "")
		b.editBooksPage(chatID, messageID, page)

	case strings.HasPrefix(data, cbBookPrefix):
		b.answer(cb.ID, "Opening…")
		b.sendBookDetails(ctx, chatID, key, strings.TrimPrefix(data, cbBookPrefix))

	case strings.HasPrefix(data, cbFavAdd):
		id := strings.TrimPrefix(data, cbFavAdd)
		if _, err := favorites.AddFromCatalog(ctx, b.favorites.For(key), b.catalog, id); err != nil {
			var lookupErr *favorites.LookupError
			if errors.As(err, &lookupErr) {
				b.logger.Warn("telegram add favorite failed", zap.String("id", id), zap.Error(err))
				b.answer(cb.ID, render.DetailsFailed)
				return
			}
			b.logger.Error("save favorites", zap.String("key", key), zap.Error(err))
			b.answer(cb.ID, "Could not save favorites.")
			return
		}
		b.answer(cb.ID, "Added to favorites")
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, toggleFavorite(cb.Message.ReplyMarkup, id, true)))

	case strings.HasPrefix(data, cbFavRemove):
		id := strings.TrimPrefix(data, cbFavRemove)
		if _, err := b.favorites.For(key).Remove(ctx, id); err != nil {
			b.logger.Error("save favorites", zap.String("key", key), zap.Error(err))
			b.answer(cb.ID, "Could not save favorites.")
			return
		}
		b.answer(cb.ID, "Removed from favorites")
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, toggleFavorite(cb.Message.ReplyMarkup, id, false)))

	case strings.HasPrefix(data, cbFavListRemove):
		id := strings.TrimPrefix(data, cbFavListRemove)
		list, err := b.favorites.For(key).Remove(ctx, id)
		if err != nil {
			b.logger.Error("save favorites", zap.String("key", key), zap.Error(err))
			b.answer(cb.ID, "Could not save favorites.")
			return
		}
		b.answer(cb.ID, "Removed from favorites")
		text, markup := favoritesView(list)
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ReplyMarkup = markup
		b.send(edit)

	default:
		b.answer(cb.ID, "")
	}
}

// detailsCaption formats d as plain text no longer than limit runes.
func detailsCaption(d models.BookDetails, limit int) string {
	title := d.Title
	if title == "" {
		title = render.UntitledBook
	}

	var sb strings.Builder
	sb.WriteString("📖 " + title)
	if d.Subtitle != "" {
		sb.WriteString("\n" + d.Subtitle)
	}
	sb.WriteString("\n✍️ " + render.AuthorText(d.Authors))
	if meta := render.Meta(d); meta != "" {
		sb.WriteString("\n🏢 " + meta)
	}
	head := sb.String()

	description := d.Description
	if description == "" {
		description = render.NoDescription
	}
	room := limit - len([]rune(head)) - 2
	if room <= 0 {
		return truncate(head, limit)
	}
	return head + "\n\n" + truncate(description, room)
}

func detailsKeyboard(d models.BookDetails, saved bool) tgbotapi.InlineKeyboardMarkup {
	fav := tgbotapi.NewInlineKeyboardButtonData("☆ Add to favorites", cbFavAdd+d.ID)
	if saved {
		fav = tgbotapi.NewInlineKeyboardButtonData("★ Remove from favorites", cbFavRemove+d.ID)
	}
	row := tgbotapi.NewInlineKeyboardRow(fav)
	if d.InfoLink != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("More info", d.InfoLink))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// toggleFavorite rewrites the favorites button of a details card and keeps
// the card's other buttons.
func toggleFavorite(current *tgbotapi.InlineKeyboardMarkup, id string, saved bool) tgbotapi.InlineKeyboardMarkup {
	if current == nil {
		return detailsKeyboard(models.BookDetails{ID: id}, saved)
	}
	fresh := detailsKeyboard(models.BookDetails{ID: id}, saved).InlineKeyboard[0][0]

	rows := make([][]tgbotapi.InlineKeyboardButton, len(current.InlineKeyboard))
	for i, row := range current.InlineKeyboard {
		rows[i] = make([]tgbotapi.InlineKeyboardButton, len(row))
		for j, btn := range row {
			if btn.CallbackData != nil && (*btn.CallbackData == cbFavAdd+id || *btn.CallbackData == cbFavRemove+id) {
				btn = fresh
			}
			rows[i][j] = btn
		}
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// favoritesView is the /favorites message. An empty collection has no
// keyboard.
func favoritesView(c models.Collection) (string, *tgbotapi.InlineKeyboardMarkup) {
	if len(c) == 0 {
		return "⭐ " + render.EmptyPanel, nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(c))
	for _, e := range c {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(bookLabel(e.Title, e.Authors), cbBookPrefix+e.ID),
			tgbotapi.NewInlineKeyboardButtonData("✖", cbFavListRemove+e.ID),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return fmt.Sprintf("⭐ Favorites: %d", len(c)), &markup
}

func bookLabel(title string, authors []string) string {
	if title == "" {
		title = render.UntitledBook
	}
	return truncate(title+" - "+render.AuthorText(authors), 60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func userKey(u *tgbotapi.User) string {
	if u == nil {
		return storage.FavoritesKey
	}
	return storage.UserFavoritesKey(u.ID)
}

// miniAppMarkup builds a web_app button by hand; the bot library predates
// mini apps.
func miniAppMarkup(url string) any {
	type webAppInfo struct {
		URL string `json:"url"`
	}
	type inlineKeyboardButton struct {
		Text   string      `json:"text"`
		WebApp *webAppInfo `json:"web_app,omitempty"`
	}
	type inlineKeyboardMarkup struct {
		InlineKeyboard [][]inlineKeyboardButton `json:"inline_keyboard"`
	}

	return inlineKeyboardMarkup{
		InlineKeyboard: [][]inlineKeyboardButton{
			{{Text: "Open bookshelf", WebApp: &webAppInfo{URL: url}}},
		},
	}
}

func (b *Bot) answer(callbackID string, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Debug("answer callback", zap.Error(err))
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.logger.Warn("telegram send failed", zap.Error(err))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}
