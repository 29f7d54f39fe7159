// Package identity — менеджер личности: вход, регистрация, гостевой вход,
// апгрейд гостя, выход и переключение режима хранения.
//
// В каждый момент активна не больше одной личности. Сессия хранится
// в account.Session, слушатели (координатор экономики) узнают о её
// начале и конце через Listener.
package identity

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/common"
	"cyberarena.app/arena/internal/db/sqlite"
	"cyberarena.app/arena/internal/features/account"
)

// Listener получает события жизненного цикла сессии.
type Listener interface {
	SessionStarted(ctx context.Context, id account.Identity, strategy account.Strategy)
	SessionEnded(ctx context.Context, id account.Identity)
}

// remoteSession — то, что сохраняется под ключом remote_session.
type remoteSession struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
}

// Service — менеджер личности.
type Service struct {
	store   *sqlite.Store
	client  backend.Client // nil, если бэкенд не настроен
	session *account.Session
	clock   clock.Clock

	mu        sync.Mutex // операции с личностью выполняются по одной
	listeners []Listener
}

// NewService создаёт менеджер личности. client может быть nil:
// тогда удалённый режим недоступен и всегда откатывается в локальный.
func NewService(store *sqlite.Store, client backend.Client, session *account.Session, clk clock.Clock) *Service {
	return &Service{
		store:   store,
		client:  client,
		session: session,
		clock:   clk,
	}
}

// AddListener подписывает слушателя на события сессии.
func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Current — копия текущей личности.
func (s *Service) Current() (account.Identity, bool) {
	return s.session.Identity()
}

// Mode — текущий режим хранения.
func (s *Service) Mode() account.Mode {
	return s.session.Mode()
}

func (s *Service) localStrategy(kind account.Kind) account.Strategy {
	return account.NewLocalStrategy(s.store, kind, s.clock)
}

func (s *Service) remoteStrategy() account.Strategy {
	return account.NewRemoteStrategy(s.client, s.clock)
}

// establish устанавливает сессию и оповещает слушателей.
func (s *Service) establish(ctx context.Context, id account.Identity, strategy account.Strategy, token string) {
	s.session.Establish(id, strategy, token)
	for _, l := range s.listeners {
		l.SessionStarted(ctx, id, strategy)
	}

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"kind":        id.Kind,
		"username":    id.Username,
		"mode":        s.session.Mode(),
	}).Info("Сессия установлена")
}

// end оповещает слушателей и закрывает сессию в памяти.
// Хранилище не трогает.
func (s *Service) end(ctx context.Context) (account.Identity, string, bool) {
	id, ok := s.session.Identity()
	if !ok {
		return account.Identity{}, "", false
	}
	for _, l := range s.listeners {
		l.SessionEnded(ctx, id)
	}
	token := s.session.Token()
	s.session.End()

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"kind":        id.Kind,
	}).Info("Сессия завершена")
	return id, token, true
}

// SignIn — вход по email и паролю в текущем режиме.
func (s *Service) SignIn(ctx context.Context, email, password string) (account.Identity, error) {
	if err := validateEmail(email); err != nil {
		return account.Identity{}, err
	}
	if password == "" {
		return account.Identity{}, common.InvalidInput("Please enter your password.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Mode() == account.ModeLocal {
		return s.signInLocal(ctx, email, password)
	}
	return s.signInRemote(ctx, email, password)
}

func (s *Service) signInLocal(ctx context.Context, email, password string) (account.Identity, error) {
	var rec account.CredentialRecord
	err := s.store.View(ctx, func(tx *sqlite.Tx) error {
		dir, err := account.LoadDirectory(tx)
		if err != nil {
			return common.WrapStorage("read directory", err)
		}
		r, ok := dir[account.EmailKey(email)]
		if !ok || !common.VerifyPassword(password, r.PasswordHash) {
			return common.ErrInvalidCredentials
		}
		rec = r
		return nil
	})
	if err != nil {
		return account.Identity{}, err
	}

	if err := s.signOutLocked(ctx); err != nil {
		return account.Identity{}, err
	}

	id := rec.Identity(s.clock.Now())
	err = s.store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.SetJSON(account.KeyLocalUser, id)
	})
	if err != nil {
		return account.Identity{}, common.WrapStorage("save local user", err)
	}

	s.establish(ctx, id, s.localStrategy(account.KindLocal), "")
	return id, nil
}

func (s *Service) signInRemote(ctx context.Context, email, password string) (account.Identity, error) {
	if s.client == nil {
		return account.Identity{}, backend.NewError(backend.MsgUnavailable)
	}

	sess, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return account.Identity{}, mapBackendError(err)
	}

	id, err := s.remoteProfile(ctx, sess.UserID, email)
	if err != nil {
		return account.Identity{}, err
	}

	if err := s.signOutLocked(ctx); err != nil {
		return account.Identity{}, err
	}
	if err := s.saveRemoteSession(ctx, sess); err != nil {
		return account.Identity{}, err
	}

	s.establish(ctx, id, s.remoteStrategy(), sess.AccessToken)
	return id, nil
}

// remoteProfile читает профиль, создавая профиль по умолчанию,
// если аутентификация есть, а строки users ещё нет.
func (s *Service) remoteProfile(ctx context.Context, userID, email string) (account.Identity, error) {
	row, err := s.client.FetchProfile(ctx, userID)
	if err == nil {
		return account.IdentityFromRow(*row), nil
	}
	if !errors.Is(err, backend.ErrNotFound) {
		return account.Identity{}, err
	}

	id := account.NewIdentity(account.KindRemote, userID, strings.ToLower(strings.TrimSpace(email)), emailPrefix(email), s.clock.Now())
	if err := s.client.InsertUser(ctx, account.RowFromIdentity(id)); err != nil {
		return account.Identity{}, err
	}
	log.WithField("identity_id", userID).Info("Создан профиль по умолчанию")
	return id, nil
}

func (s *Service) saveRemoteSession(ctx context.Context, sess *backend.Session) error {
	err := s.store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.SetJSON(account.KeyRemoteSession, remoteSession{
			AccessToken: sess.AccessToken,
			UserID:      sess.UserID,
		})
	})
	return common.WrapStorage("save remote session", err)
}

// SignUp регистрирует аккаунт. Сессию не устанавливает: после
// регистрации нужно отдельно войти.
func (s *Service) SignUp(ctx context.Context, email, password, username string) (account.Identity, error) {
	if err := validateEmail(email); err != nil {
		return account.Identity{}, err
	}
	if err := validatePassword(password); err != nil {
		return account.Identity{}, err
	}
	if err := validateUsername(username); err != nil {
		return account.Identity{}, err
	}
	username = strings.TrimSpace(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Mode() == account.ModeLocal {
		return s.signUpLocal(ctx, email, password, username)
	}
	return s.signUpRemote(ctx, email, password, username)
}

func (s *Service) signUpLocal(ctx context.Context, email, password, username string) (account.Identity, error) {
	hash, err := common.HashPassword(password)
	if err != nil {
		return account.Identity{}, err
	}

	now := s.clock.Now()
	id := account.NewIdentity(account.KindLocal, common.StampedID("local", now), account.EmailKey(email), username, now)

	err = s.store.Update(ctx, func(tx *sqlite.Tx) error {
		dir, err := account.LoadDirectory(tx)
		if err != nil {
			return common.WrapStorage("read directory", err)
		}
		if _, exists := dir[account.EmailKey(email)]; exists {
			return common.ErrEmailTaken
		}
		if dir.UsernameTaken(username) {
			return common.ErrUsernameTaken
		}
		dir[account.EmailKey(email)] = account.NewCredentialRecord(id, hash, now)
		return saveDirectory(tx, dir)
	})
	if err != nil {
		return account.Identity{}, err
	}

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"username":    username,
	}).Info("Зарегистрирован локальный аккаунт")
	return id, nil
}

// saveDirectory сохраняет справочник, оборачивая ошибку хранилища.
func saveDirectory(tx *sqlite.Tx, dir account.Directory) error {
	return common.WrapStorage("save directory", account.SaveDirectory(tx, dir))
}

func (s *Service) signUpRemote(ctx context.Context, email, password, username string) (account.Identity, error) {
	if s.client == nil {
		return account.Identity{}, backend.NewError(backend.MsgUnavailable)
	}

	taken, err := s.client.UsernameExists(ctx, username)
	if err != nil {
		return account.Identity{}, err
	}
	if taken {
		return account.Identity{}, common.ErrUsernameTaken
	}

	userID, err := s.client.SignUp(ctx, email, password)
	if err != nil {
		return account.Identity{}, mapBackendError(err)
	}

	id := account.NewIdentity(account.KindRemote, userID, account.EmailKey(email), username, s.clock.Now())
	if err := s.client.InsertUser(ctx, account.RowFromIdentity(id)); err != nil {
		return account.Identity{}, err
	}

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"username":    username,
	}).Info("Зарегистрирован удалённый аккаунт")
	return id, nil
}

// SignInAsGuest — вход гостем без учётных данных.
func (s *Service) SignInAsGuest(ctx context.Context, username string) (account.Identity, error) {
	if err := validateUsername(username); err != nil {
		return account.Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.signOutLocked(ctx); err != nil {
		return account.Identity{}, err
	}

	now := s.clock.Now()
	id := account.NewIdentity(account.KindGuest, common.StampedID("guest", now), "", strings.TrimSpace(username), now)
	err := s.store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.SetJSON(account.KeyGuestUser, id)
	})
	if err != nil {
		return account.Identity{}, common.WrapStorage("save guest", err)
	}

	s.establish(ctx, id, s.localStrategy(account.KindGuest), "")
	return id, nil
}

// UpgradeGuestAccount превращает гостя в полноценный аккаунт текущего
// режима. Экономика и профиль переносятся без изменений.
func (s *Service) UpgradeGuestAccount(ctx context.Context, email, password string) (account.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, strategy, ok := s.session.Current()
	if !ok || !current.IsGuest() {
		return account.Identity{}, common.ErrNotAGuest
	}
	if err := validateEmail(email); err != nil {
		return account.Identity{}, err
	}
	if err := validatePassword(password); err != nil {
		return account.Identity{}, err
	}

	// Слушатели сохраняют накопленное (майнинг) до переноса данных
	s.end(ctx)

	guest, err := strategy.Load(ctx, current.ID)
	if err != nil {
		guest = current
	}

	var (
		upgraded    account.Identity
		newStrategy account.Strategy
		token       string
	)
	if s.session.Mode() == account.ModeLocal {
		upgraded, err = s.upgradeLocal(ctx, guest, email, password)
		newStrategy = s.localStrategy(account.KindLocal)
	} else {
		var sess *backend.Session
		upgraded, sess, err = s.upgradeRemote(ctx, guest, email, password)
		if sess != nil {
			token = sess.AccessToken
		}
		newStrategy = s.remoteStrategy()
	}
	if err != nil {
		// Гость остаётся как был
		s.establish(ctx, guest, strategy, "")
		return account.Identity{}, err
	}

	log.WithFields(log.Fields{
		"guest_id":    guest.ID,
		"identity_id": upgraded.ID,
		"kind":        upgraded.Kind,
		"balance":     upgraded.Balance.String(),
	}).Info("Гостевой аккаунт переведён в постоянный")

	s.establish(ctx, upgraded, newStrategy, token)
	return upgraded, nil
}

func (s *Service) upgradeLocal(ctx context.Context, guest account.Identity, email, password string) (account.Identity, error) {
	hash, err := common.HashPassword(password)
	if err != nil {
		return account.Identity{}, err
	}

	now := s.clock.Now()
	upgraded := guest.Clone()
	upgraded.ID = common.StampedID("local", now)
	upgraded.Kind = account.KindLocal
	upgraded.Email = account.EmailKey(email)
	upgraded.LastActive = now

	err = s.store.Update(ctx, func(tx *sqlite.Tx) error {
		dir, err := account.LoadDirectory(tx)
		if err != nil {
			return common.WrapStorage("read directory", err)
		}
		if _, exists := dir[upgraded.Email]; exists {
			return common.ErrEmailTaken
		}
		dir[upgraded.Email] = account.NewCredentialRecord(upgraded, hash, now)
		if err := saveDirectory(tx, dir); err != nil {
			return err
		}
		if err := tx.SetJSON(account.KeyLocalUser, upgraded); err != nil {
			return common.WrapStorage("save local user", err)
		}
		if err := migrateGuestData(tx, guest.ID, upgraded.ID); err != nil {
			return common.WrapStorage("migrate guest data", err)
		}
		return common.WrapStorage("remove guest", tx.Remove(account.KeyGuestUser))
	})
	if err != nil {
		return account.Identity{}, err
	}
	return upgraded, nil
}

// migrateGuestData переносит журнал, майнинг и турниры гостя на новый id.
func migrateGuestData(tx *sqlite.Tx, guestID, localID string) error {
	var ledger []account.Transaction
	ok, err := tx.GetJSON(account.LedgerKey(account.KindGuest, guestID), &ledger)
	if err != nil {
		return err
	}
	if ok {
		for i := range ledger {
			ledger[i].UserID = localID
		}
		if err := tx.SetJSON(account.LedgerKey(account.KindLocal, localID), ledger); err != nil {
			return err
		}
	}

	var mining account.MiningSession
	ok, err = tx.GetJSON(account.MiningKey(account.KindGuest, guestID), &mining)
	if err != nil {
		return err
	}
	if ok {
		mining.UserID = localID
		if err := tx.SetJSON(account.MiningKey(account.KindLocal, localID), mining); err != nil {
			return err
		}
	}

	var tournaments account.TournamentState
	ok, err = tx.GetJSON(account.TournamentsKey(account.KindGuest, guestID), &tournaments)
	if err != nil {
		return err
	}
	if ok {
		if err := tx.SetJSON(account.TournamentsKey(account.KindLocal, localID), tournaments); err != nil {
			return err
		}
	}

	for _, key := range account.PerIdentityKeys(account.KindGuest, guestID) {
		if err := tx.Remove(key); err != nil {
			return err
		}
	}
	return nil
}

// upgradeRemote регистрирует гостя на бэкенде с его экономикой и входит.
// Журнал и незабранный майнинг гостя на бэкенд не переносятся.
func (s *Service) upgradeRemote(ctx context.Context, guest account.Identity, email, password string) (account.Identity, *backend.Session, error) {
	if s.client == nil {
		return account.Identity{}, nil, backend.NewError(backend.MsgUnavailable)
	}

	userID, err := s.client.SignUp(ctx, email, password)
	if err != nil {
		return account.Identity{}, nil, mapBackendError(err)
	}

	upgraded := guest.Clone()
	upgraded.ID = userID
	upgraded.Kind = account.KindRemote
	upgraded.Email = account.EmailKey(email)
	upgraded.LastActive = s.clock.Now()
	if err := s.client.InsertUser(ctx, account.RowFromIdentity(upgraded)); err != nil {
		return account.Identity{}, nil, err
	}

	sess, err := s.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return account.Identity{}, nil, mapBackendError(err)
	}
	if err := s.saveRemoteSession(ctx, sess); err != nil {
		return account.Identity{}, nil, err
	}

	if err := s.clearGuest(ctx, guest.ID); err != nil {
		log.WithError(err).WithField("guest_id", guest.ID).Warn("Не удалось удалить данные гостя")
	}
	return upgraded, sess, nil
}

func (s *Service) clearGuest(ctx context.Context, guestID string) error {
	err := s.store.Update(ctx, func(tx *sqlite.Tx) error {
		keys := append([]string{account.KeyGuestUser}, account.PerIdentityKeys(account.KindGuest, guestID)...)
		for _, key := range keys {
			if err := tx.Remove(key); err != nil {
				return err
			}
		}
		return nil
	})
	return common.WrapStorage("remove guest", err)
}

// SignOut завершает текущую сессию. Гость удаляется полностью,
// у локального и удалённого аккаунта остаются учётные данные.
func (s *Service) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signOutLocked(ctx)
}

func (s *Service) signOutLocked(ctx context.Context) error {
	id, token, ok := s.end(ctx)
	if !ok {
		return nil
	}

	switch id.Kind {
	case account.KindGuest:
		return s.clearGuest(ctx, id.ID)
	case account.KindLocal:
		return common.WrapStorage("remove local user", s.store.Remove(ctx, account.KeyLocalUser))
	case account.KindRemote:
		if s.client != nil && token != "" {
			if err := s.client.SignOut(ctx, token); err != nil {
				log.WithError(err).WithField("identity_id", id.ID).Warn("Бэкенд не завершил сессию")
			}
		}
		return common.WrapStorage("remove remote session", s.store.Remove(ctx, account.KeyRemoteSession))
	}
	return nil
}

func (s *Service) setMode(ctx context.Context, mode account.Mode) error {
	s.session.SetMode(mode)
	err := s.store.Set(ctx, account.KeyLocalMode, strconv.FormatBool(mode == account.ModeLocal))

	log.WithField("mode", mode).Info("Режим хранения переключён")
	return common.WrapStorage("save mode", err)
}

// SwitchToLocalMode выходит из аккаунта и включает локальный режим.
func (s *Service) SwitchToLocalMode(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.signOutLocked(ctx); err != nil {
		return err
	}
	return s.setMode(ctx, account.ModeLocal)
}

// SwitchToRemoteMode выходит из аккаунта и пытается подключиться к бэкенду.
// Если бэкенд недоступен, молча включается локальный режим.
// Возвращает режим, который в итоге установлен.
func (s *Service) SwitchToRemoteMode(ctx context.Context) (account.Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.signOutLocked(ctx); err != nil {
		return s.session.Mode(), err
	}

	if !s.backendReachable(ctx) {
		return account.ModeLocal, s.setMode(ctx, account.ModeLocal)
	}
	return account.ModeRemote, s.setMode(ctx, account.ModeRemote)
}

func (s *Service) backendReachable(ctx context.Context) bool {
	if s.client == nil {
		log.Warn("Бэкенд не настроен, остаёмся в локальном режиме")
		return false
	}
	if err := s.client.Ping(ctx); err != nil {
		log.WithError(err).Warn("Бэкенд недоступен, переключаемся в локальный режим")
		return false
	}
	return true
}

// Restore восстанавливает сессию при старте. Порядок: гость,
// затем локальный аккаунт в локальном режиме, затем удалённая сессия.
// Отсутствие сохранённой сессии ошибкой не считается.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := account.ModeRemote
	raw, ok, err := s.store.Get(ctx, account.KeyLocalMode)
	if err != nil {
		return common.WrapStorage("read mode", err)
	}
	if ok && raw == "true" {
		mode = account.ModeLocal
	}
	if mode == account.ModeRemote && !s.backendReachable(ctx) {
		if err := s.setMode(ctx, account.ModeLocal); err != nil {
			return err
		}
		mode = account.ModeLocal
	}
	s.session.SetMode(mode)

	var guest account.Identity
	err = s.store.View(ctx, func(tx *sqlite.Tx) error {
		ok, err = tx.GetJSON(account.KeyGuestUser, &guest)
		return err
	})
	if err != nil {
		return common.WrapStorage("read guest", err)
	}
	if ok {
		s.establish(ctx, guest, s.localStrategy(account.KindGuest), "")
		return nil
	}

	if mode == account.ModeLocal {
		return s.restoreLocal(ctx)
	}
	return s.restoreRemote(ctx)
}

func (s *Service) restoreLocal(ctx context.Context) error {
	var (
		id account.Identity
		ok bool
	)
	err := s.store.View(ctx, func(tx *sqlite.Tx) error {
		var err error
		ok, err = tx.GetJSON(account.KeyLocalUser, &id)
		return err
	})
	if err != nil {
		return common.WrapStorage("read local user", err)
	}
	if ok {
		s.establish(ctx, id, s.localStrategy(account.KindLocal), "")
	}
	return nil
}

func (s *Service) restoreRemote(ctx context.Context) error {
	var (
		saved remoteSession
		ok    bool
	)
	err := s.store.View(ctx, func(tx *sqlite.Tx) error {
		var err error
		ok, err = tx.GetJSON(account.KeyRemoteSession, &saved)
		return err
	})
	if err != nil {
		return common.WrapStorage("read remote session", err)
	}
	if !ok {
		return nil
	}

	sess, err := s.client.GetSession(ctx, saved.AccessToken)
	if err != nil {
		log.WithError(err).Warn("Не удалось восстановить удалённую сессию, переключаемся в локальный режим")
		if err := s.setMode(ctx, account.ModeLocal); err != nil {
			return err
		}
		return s.restoreLocal(ctx)
	}
	if sess == nil {
		log.WithField("identity_id", saved.UserID).Info("Удалённая сессия истекла")
		return common.WrapStorage("remove remote session", s.store.Remove(ctx, account.KeyRemoteSession))
	}

	id, err := s.remoteProfile(ctx, sess.UserID, sess.Email)
	if err != nil {
		return err
	}
	s.establish(ctx, id, s.remoteStrategy(), saved.AccessToken)
	return nil
}

// Refresh перечитывает текущую личность из её хранилища.
func (s *Service) Refresh(ctx context.Context) (account.Identity, error) {
	current, strategy, ok := s.session.Current()
	if !ok {
		return account.Identity{}, common.ErrNotSignedIn
	}
	fresh, err := strategy.Load(ctx, current.ID)
	if err != nil {
		return account.Identity{}, err
	}
	s.session.Update(fresh)
	return fresh, nil
}
