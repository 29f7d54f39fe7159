package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"cyberarena.app/arena/internal/common"
	"cyberarena.app/arena/internal/features/account"
	"cyberarena.app/arena/internal/features/economy"
)

const historyLimit = 10

var minDeposit = decimal.New(1, -2)

const helpText = `🎮 Cyber Arena

Account:
/guest <username> - play as a guest (progress is lost on sign out)
/signup <email> <password> <username> - create an account
/signin <email> <password> - sign in
/upgrade <email> <password> - keep your guest progress in a real account
/signout - sign out
/mode [local|remote] - show or switch storage mode
/me - your profile and balance

Games:
/games - catalog
/play [game] - join matchmaking, or show match status
/leave - leave matchmaking
/result <score> [game] [practice] - submit a finished game

Wallet:
/mine - start or stop mining (/mine status)
/withdraw <amount> - withdraw with a $0.02 fee
/deposit <amount> - deposit funds
/history - recent transactions

Compete:
/leaderboard - top players
/tournaments - live tournaments
/join <tournament> - join a tournament
/spectate <tournament> - watch a tournament
/room create <game> [players] | /room join <code> - play with friends`

func (r *Router) help(context.Context, []string) (string, error) {
	return helpText, nil
}

func (r *Router) signUp(ctx context.Context, args []string) (string, error) {
	if len(args) < 3 {
		return "", usageError("/signup <email> <password> <username>")
	}
	id, err := r.identity.SignUp(ctx, args[0], args[1], strings.Join(args[2:], " "))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Account %s created. Sign in with /signin %s <password>", id.Username, id.Email), nil
}

func (r *Router) signIn(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError("/signin <email> <password>")
	}
	id, err := r.identity.SignIn(ctx, args[0], args[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("👋 Welcome back, %s! Balance: %s", id.Username, common.FormatMoney(id.Balance)), nil
}

func (r *Router) guest(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", usageError("/guest <username>")
	}
	id, err := r.identity.SignInAsGuest(ctx, strings.Join(args, " "))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("👋 Hi, %s! You start with %s. Guest progress lives on this device only, /upgrade to keep it.",
		id.Username, common.FormatMoney(id.Balance)), nil
}

func (r *Router) upgrade(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "", usageError("/upgrade <email> <password>")
	}
	id, err := r.identity.UpgradeGuestAccount(ctx, args[0], args[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Account upgraded. %s, your balance of %s is now saved to %s.",
		id.Username, common.FormatMoney(id.Balance), id.Email), nil
}

func (r *Router) signOut(ctx context.Context, _ []string) (string, error) {
	if _, ok := r.identity.Current(); !ok {
		return "", common.ErrNotSignedIn
	}
	if err := r.identity.SignOut(ctx); err != nil {
		return "", err
	}
	return "👋 Signed out.", nil
}

func (r *Router) mode(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return fmt.Sprintf("💾 Storage mode: %s", r.identity.Mode()), nil
	}

	switch strings.ToLower(args[0]) {
	case string(account.ModeLocal):
		if err := r.identity.SwitchToLocalMode(ctx); err != nil {
			return "", err
		}
		return "💾 Local mode enabled. Everything is stored on this device.", nil
	case string(account.ModeRemote):
		mode, err := r.identity.SwitchToRemoteMode(ctx)
		if err != nil {
			return "", err
		}
		if mode != account.ModeRemote {
			return "⚠️ Hosted backend is unreachable, staying in local mode.", nil
		}
		return "☁️ Remote mode enabled. Sign in to your online account.", nil
	default:
		return "", usageError("/mode [local|remote]")
	}
}

func (r *Router) me(context.Context, []string) (string, error) {
	id, ok := r.identity.Current()
	if !ok {
		return "", common.ErrNotSignedIn
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s (%s)\n", id.Username, id.Kind)
	fmt.Fprintf(&b, "Balance: %s\n", common.FormatMoney(id.Balance))
	fmt.Fprintf(&b, "Debt: %s", common.FormatMoney(id.Debt))
	if id.IsLocked() {
		b.WriteString(" 🔒 locked")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Level %d · %s XP\n", id.Level, common.FormatNumber(int64(id.XP)))
	fmt.Fprintf(&b, "%s, %s · streak %d\n",
		common.Pluralize(id.TotalWins, "win"),
		common.PluralizeForm(id.TotalLosses, "loss", "losses"),
		id.WinStreak)
	fmt.Fprintf(&b, "Mining power: %d H/s (%.0f%%)\n", id.MiningPower, account.Efficiency(id.MiningPower))
	fmt.Fprintf(&b, "Mode: %s", r.identity.Mode())
	return b.String(), nil
}

func (r *Router) games(context.Context, []string) (string, error) {
	var b strings.Builder
	b.WriteString("🕹 Games:")
	for i, g := range r.economy.Games() {
		fmt.Fprintf(&b, "\n%d. %s (%s) - min bet %s, up to %d players",
			i+1, g.Name, g.Type, common.FormatMoney(g.MinBet), g.MaxPlayers)
	}
	return b.String(), nil
}

// resolveGame находит игру по номеру в каталоге, id, типу или имени без пробелов.
func (r *Router) resolveGame(ref string) (account.Game, error) {
	games := r.economy.Games()
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(games) {
			return games[n-1], nil
		}
		return account.Game{}, common.ErrGameNotFound
	}
	for _, g := range games {
		if g.ID == ref ||
			strings.EqualFold(g.Type, ref) ||
			strings.EqualFold(strings.ReplaceAll(g.Name, " ", ""), ref) {
			return g, nil
		}
	}
	return account.Game{}, common.ErrGameNotFound
}

func (r *Router) play(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return r.matchStatus(), nil
	}
	game, err := r.resolveGame(args[0])
	if err != nil {
		return "", err
	}
	if err := r.economy.JoinMatchmaking(ctx, game.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("🔎 Looking for opponents in %s (min bet %s)... Check /play in a moment.",
		game.Name, common.FormatMoney(game.MinBet)), nil
}

func (r *Router) matchStatus() string {
	if gs := r.economy.GameSession(); gs != nil {
		name := gs.GameID
		if g, err := r.resolveGame(gs.GameID); err == nil {
			name = g.Name
		}
		return fmt.Sprintf("🎮 Match found: %s, prize pool %s. Submit your score with /result <score>.",
			name, common.FormatMoney(gs.PrizePool))
	}
	if q := r.economy.Matchmaking(); q.Queued {
		return "🔎 Still searching for opponents..."
	}
	return "Not in a queue. Start with /play <game>."
}

func (r *Router) leave(context.Context, []string) (string, error) {
	r.economy.LeaveMatchmaking()
	return "🚪 Left matchmaking.", nil
}

func (r *Router) result(ctx context.Context, args []string) (string, error) {
	if len(args) == 0 {
		return "", usageError("/result <score> [game] [practice]")
	}
	score, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return "", usageError("/result <score> [game] [practice]")
	}

	var data economy.GameData
	for _, a := range args[1:] {
		if strings.EqualFold(a, "practice") {
			data.IsPractice = true
			continue
		}
		game, err := r.resolveGame(a)
		if err != nil {
			return "", err
		}
		data.GameID = game.ID
	}

	out, err := r.economy.SubmitGameResult(ctx, score, data)
	if err != nil {
		return "", err
	}
	if out == nil {
		return "⚠️ No game to record. Start one with /play <game>.", nil
	}
	if out.Practice {
		return "🎯 Practice round finished. No stakes, no rewards.", nil
	}

	balance := ""
	if id, ok := r.identity.Current(); ok {
		balance = "\nBalance: " + common.FormatMoney(id.Balance)
	}
	if out.Won {
		bonus := ""
		if out.StreakBonus {
			bonus = " 🔥 3 win streak bonus!"
		}
		return fmt.Sprintf("🏆 Victory! %s%s%s", common.FormatSignedMoney(out.Amount), bonus, balance), nil
	}
	return fmt.Sprintf("💀 Defeat. %s%s", common.FormatSignedMoney(out.Amount), balance), nil
}

func (r *Router) mine(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 && strings.EqualFold(args[0], "status") {
		m := r.economy.MiningSession()
		if m == nil || m.Status != account.MiningActive {
			return "⛏ Mining is off. Start it with /mine.", nil
		}
		return fmt.Sprintf("⛏ Mining at %d H/s for %s, earned %s so far.",
			m.HashRate, common.FormatDuration(r.clock.Since(m.StartTime)), common.FormatMoney(m.CoinsEarned)), nil
	}

	m, err := r.economy.ToggleMining(ctx)
	if err != nil {
		return "", err
	}
	if m.Status == account.MiningActive {
		return fmt.Sprintf("⛏ Mining started: %d H/s, efficiency %.0f%%. Coins accrue every 30 seconds.",
			m.HashRate, m.Efficiency), nil
	}
	return fmt.Sprintf("⛏ Mining stopped. Earned %s.", common.FormatMoney(m.CoinsEarned)), nil
}

func (r *Router) withdraw(ctx context.Context, args []string) (string, error) {
	amount, err := parseAmountArg(args, "/withdraw <amount>")
	if err != nil {
		return "", err
	}
	res := r.economy.WithdrawCrypto(ctx, amount)
	if !res.Success {
		return "", res.Reason
	}
	return fmt.Sprintf("💸 Withdrawal of %s initiated. Fee: %s. Funds will arrive within 24 hours.",
		common.FormatMoney(amount), common.FormatMoney(res.Fee)), nil
}

func (r *Router) deposit(ctx context.Context, args []string) (string, error) {
	amount, err := parseAmountArg(args, "/deposit <amount>")
	if err != nil {
		return "", err
	}
	if amount.LessThan(minDeposit) {
		return "❌ Minimum deposit amount is $0.01", nil
	}
	res, err := r.economy.DepositCrypto(ctx, amount)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("💰 Deposit of %s received.\nTransaction ID: %s", common.FormatMoney(amount), res.TransactionID), nil
}

func parseAmountArg(args []string, usage string) (decimal.Decimal, error) {
	if len(args) != 1 {
		return decimal.Zero, usageError(usage)
	}
	amount, err := common.ParseAmount(args[0])
	if err != nil {
		if errors.Is(err, common.ErrInvalidAmount) {
			return decimal.Zero, err
		}
		return decimal.Zero, usageError(usage)
	}
	return amount, nil
}

func (r *Router) history(context.Context, []string) (string, error) {
	if _, ok := r.identity.Current(); !ok {
		return "", common.ErrNotSignedIn
	}
	txs := r.economy.Transactions()
	if len(txs) == 0 {
		return "📭 No transactions yet.", nil
	}
	if len(txs) > historyLimit {
		txs = txs[:historyLimit]
	}

	var b strings.Builder
	b.WriteString("📜 Recent transactions:")
	for _, tx := range txs {
		fmt.Fprintf(&b, "\n%s  %s  %s", common.FormatDateTime(tx.Timestamp), common.FormatSignedMoney(tx.Amount), tx.Description)
	}
	return b.String(), nil
}

func (r *Router) leaderboard(context.Context, []string) (string, error) {
	board := r.economy.Leaderboard()
	if len(board) == 0 {
		return "🏆 Leaderboard is empty.", nil
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard:")
	for _, e := range board {
		fmt.Fprintf(&b, "\n%d. %s - %s, %.1f%%, %s",
			e.Rank, e.Username, common.Pluralize(e.Wins, "win"), e.WinRate, common.FormatMoney(e.TotalEarnings))
	}
	return b.String(), nil
}

func (r *Router) tournaments(context.Context, []string) (string, error) {
	live := r.economy.LiveTournaments()
	if len(live) == 0 {
		return "🏟 No live tournaments right now.", nil
	}
	state := r.economy.TournamentState()

	var b strings.Builder
	b.WriteString("🏟 Tournaments:")
	for _, t := range live {
		fmt.Fprintf(&b, "\n%s - %s (%s), entry %s, prize %s, %d/%d players [%s]",
			t.Name, t.GameName, t.Status,
			common.FormatMoney(t.EntryFee), common.FormatMoney(t.PrizePool),
			t.CurrentParticipants, t.MaxParticipants, t.ID)
		switch {
		case slices.Contains(state.Joined, t.ID):
			b.WriteString(" ✅ joined")
		case slices.Contains(state.Spectating, t.ID):
			b.WriteString(" 👀 watching")
		}
	}
	return b.String(), nil
}

func (r *Router) join(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError("/join <tournament>")
	}
	if err := r.economy.JoinTournament(ctx, args[0]); err != nil {
		return "", err
	}
	return "✅ You joined the tournament.", nil
}

func (r *Router) spectate(ctx context.Context, args []string) (string, error) {
	if len(args) != 1 {
		return "", usageError("/spectate <tournament>")
	}
	if err := r.economy.SpectateMatch(ctx, args[0]); err != nil {
		return "", err
	}
	return "👀 You are now spectating.", nil
}

func (r *Router) room(ctx context.Context, args []string) (string, error) {
	const usage = "/room create <game> [players] | /room join <code>"
	if len(args) < 2 {
		return "", usageError(usage)
	}

	switch strings.ToLower(args[0]) {
	case "create":
		game, err := r.resolveGame(args[1])
		if err != nil {
			return "", err
		}
		var settings account.RoomSettings
		if len(args) > 2 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return "", usageError(usage)
			}
			settings.MaxPlayers = n
		}
		room, err := r.economy.CreateGameRoom(ctx, game.ID, settings)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🚪 Room %s created for %s (up to %d players). Share the code with friends.",
			room.Code, game.Name, room.MaxPlayers), nil
	case "join":
		room, err := r.economy.JoinGameRoom(ctx, args[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("🚪 Joined room %s hosted by %s.", room.Code, room.HostUsername), nil
	default:
		return "", usageError(usage)
	}
}
