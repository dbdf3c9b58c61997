package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"casguard/internal/moderation"
)

var _ moderation.Platform = (*Bot)(nil)
var _ moderation.NameResolver = (*Bot)(nil)

// SendMessage sends an HTML formatted message to the given chat.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// BanMember bans an account from the chat.
func (b *Bot) BanMember(ctx context.Context, chatID, accountID int64) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.api.Request(tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: accountID},
	})
	if err != nil {
		return fmt.Errorf("ban member: %w", err)
	}
	return nil
}

// DeleteMessage deletes a single message.
func (b *Bot) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, int(messageID))); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// UnbanMember lifts a ban. Accounts that are not banned are left alone.
func (b *Bot) UnbanMember(ctx context.Context, chatID, accountID int64) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := b.api.Request(tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: accountID},
		OnlyIfBanned:     true,
	})
	if err != nil {
		return fmt.Errorf("unban member: %w", err)
	}
	return nil
}

// DisplayName looks up the current name of a chat member.
func (b *Bot) DisplayName(ctx context.Context, chatID, accountID int64) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	m, err := b.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: accountID},
	})
	if err != nil {
		return "", fmt.Errorf("get chat member: %w", err)
	}
	if m.User == nil {
		return "", fmt.Errorf("get chat member: no user in response")
	}
	return fullName(m.User), nil
}
