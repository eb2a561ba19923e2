package vault

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"trader-core/pkg/config"
	"trader-core/pkg/errno"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestVault(t *testing.T) (*Vault, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	v := newWithClock(NewMemStore(), &config.VaultConfig{
		LockTimeout: 15 * time.Minute,
		MaxAttempts: 3,
	}, clock.now)
	return v, clock
}

func TestCreateThenSignerRequiresUnlock(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	res, err := v.Create(ctx, 1, "correct-horse", "1234")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if res.Address == "" || res.Mnemonic == "" {
		t.Fatal("Create should return address and mnemonic")
	}
	if len(res.BackupCodes) != backupCodeCount {
		t.Errorf("backup codes = %d, want %d", len(res.BackupCodes), backupCodeCount)
	}

	if _, err := v.GetSigner(1); err != errno.ErrWalletLocked {
		t.Errorf("GetSigner before unlock = %v, want ErrWalletLocked", err)
	}

	sess, err := v.Unlock(ctx, 1, "correct-horse", "")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if sess.Address != res.Address {
		t.Errorf("session address %s != created address %s", sess.Address, res.Address)
	}

	signer, err := v.GetSigner(1)
	if err != nil {
		t.Fatalf("GetSigner after unlock failed: %v", err)
	}
	if signer.Address() != res.Address {
		t.Errorf("signer address %s != created address %s", signer.Address(), res.Address)
	}
}

func TestCreateDuplicate(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	if _, err := v.Create(ctx, 1, "pw", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := v.Create(ctx, 1, "pw2", "5678"); err != errno.ErrWalletExists {
		t.Errorf("second Create = %v, want ErrWalletExists", err)
	}
	if _, err := v.Import(ctx, 1, "0x0000000000000000000000000000000000000000000000000000000000000001", "pw", "1234"); err != errno.ErrWalletExists {
		t.Errorf("Import over existing = %v, want ErrWalletExists", err)
	}
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	if _, err := v.Create(ctx, 1, "right-password", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// 连续错 3 次，剩余次数递减
	for i, wantRemaining := range []int{2, 1, 0} {
		_, err := v.Unlock(ctx, 1, "wrong-password", "")
		bad, ok := err.(*BadCredentialsError)
		if !ok {
			t.Fatalf("attempt %d: err = %v, want BadCredentialsError", i+1, err)
		}
		if bad.Remaining != wantRemaining {
			t.Errorf("attempt %d: remaining = %d, want %d", i+1, bad.Remaining, wantRemaining)
		}
	}

	// 封锁后正确口令也被拒
	if _, err := v.Unlock(ctx, 1, "right-password", ""); err != errno.ErrAttemptsExceeded {
		t.Errorf("locked unlock = %v, want ErrAttemptsExceeded", err)
	}

	// 管理员重置后恢复
	v.ResetAttempts(1)
	if _, err := v.Unlock(ctx, 1, "right-password", ""); err != nil {
		t.Errorf("unlock after reset failed: %v", err)
	}
}

func TestSuccessResetsCounter(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	if _, err := v.Create(ctx, 1, "pw", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	v.Unlock(ctx, 1, "bad", "")
	v.Unlock(ctx, 1, "bad", "")
	if _, err := v.Unlock(ctx, 1, "pw", ""); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}

	// 成功解锁后计数归零，又有完整的尝试额度
	_, err := v.Unlock(ctx, 1, "bad", "")
	bad, ok := err.(*BadCredentialsError)
	if !ok || bad.Remaining != 2 {
		t.Errorf("after reset err = %v, want BadCredentialsError{Remaining:2}", err)
	}
}

func TestAttemptDecay(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	v := newWithClock(NewMemStore(), &config.VaultConfig{
		LockTimeout:  15 * time.Minute,
		MaxAttempts:  2,
		AttemptDecay: time.Hour,
	}, clock.now)
	ctx := context.Background()

	if _, err := v.Create(ctx, 1, "pw", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	v.Unlock(ctx, 1, "bad", "")
	v.Unlock(ctx, 1, "bad", "")
	if _, err := v.Unlock(ctx, 1, "pw", ""); err != errno.ErrAttemptsExceeded {
		t.Fatalf("expected lockout, got %v", err)
	}

	clock.advance(time.Hour)
	if _, err := v.Unlock(ctx, 1, "pw", ""); err != nil {
		t.Errorf("unlock after decay failed: %v", err)
	}
}

func TestConcurrentWrongPasswordsRespectLockout(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	v := newWithClock(NewMemStore(), &config.VaultConfig{
		LockTimeout: 15 * time.Minute,
		MaxAttempts: 2,
	}, clock.now)
	ctx := context.Background()

	if _, err := v.Create(ctx, 1, "right-password", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// 并发打满错误口令：占位计数保证最多 max 次走到凭据验证，
	// 其余的在临界区内就被拒绝
	const burst = 8
	var (
		wg       sync.WaitGroup
		badCreds atomic.Int32
		refused  atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := v.Unlock(ctx, 1, "wrong-password", "")
			switch err.(type) {
			case *BadCredentialsError:
				badCreds.Add(1)
			default:
				if err == errno.ErrAttemptsExceeded {
					refused.Add(1)
				} else {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := badCreds.Load(); got != 2 {
		t.Errorf("evaluated attempts = %d, want exactly max_attempts (2)", got)
	}
	if got := refused.Load(); got != burst-2 {
		t.Errorf("refused attempts = %d, want %d", got, burst-2)
	}

	// 封锁后正确口令也被拒
	if _, err := v.Unlock(ctx, 1, "right-password", ""); err != errno.ErrAttemptsExceeded {
		t.Errorf("unlock after burst = %v, want ErrAttemptsExceeded", err)
	}
}

func TestConcurrentBackupCodeSingleUse(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()
	store := v.store.(*MemStore)

	if _, err := v.Create(ctx, 1, "pw", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	rec, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get record failed: %v", err)
	}
	code, err := totp.GenerateCode(rec.TwoFactorSecret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}
	backupCodes, err := v.EnableTwoFactor(ctx, 1, code)
	if err != nil {
		t.Fatalf("EnableTwoFactor failed: %v", err)
	}

	// 两个并发解锁出示同一枚备份码，只能有一个成功
	var (
		wg       sync.WaitGroup
		unlocked atomic.Int32
		rejected atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := v.Unlock(ctx, 1, "pw", backupCodes[0])
			switch err {
			case nil:
				unlocked.Add(1)
			case errno.ErrBadTOTP:
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if unlocked.Load() != 1 || rejected.Load() != 1 {
		t.Errorf("unlocked = %d, rejected = %d, want 1/1",
			unlocked.Load(), rejected.Load())
	}

	// 消费后这枚码永久作废
	v.Lock(1)
	if _, err := v.Unlock(ctx, 1, "pw", backupCodes[0]); err != errno.ErrBadTOTP {
		t.Errorf("consumed backup code = %v, want ErrBadTOTP", err)
	}
}

func TestSessionSlidingExpiry(t *testing.T) {
	v, clock := newTestVault(t)
	ctx := context.Background()

	if _, err := v.Create(ctx, 1, "pw", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := v.Unlock(ctx, 1, "pw", ""); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	// 每次活跃都把窗口往后滑
	clock.advance(10 * time.Minute)
	if !v.IsUnlocked(1) {
		t.Fatal("session should survive within the window")
	}
	clock.advance(10 * time.Minute)
	if !v.IsUnlocked(1) {
		t.Fatal("sliding window should have been refreshed")
	}

	// 静默超过窗口后惰性过期
	clock.advance(16 * time.Minute)
	if v.IsUnlocked(1) {
		t.Error("session should expire after idle timeout")
	}
	if _, err := v.GetSigner(1); err != errno.ErrWalletLocked {
		t.Errorf("GetSigner after expiry = %v, want ErrWalletLocked", err)
	}
}

func TestLockIdempotent(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	if _, err := v.Create(ctx, 1, "pw", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := v.Unlock(ctx, 1, "pw", ""); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	v.Lock(1)
	if v.IsUnlocked(1) {
		t.Fatal("should be locked")
	}
	v.Lock(1) // 重复 lock 是空操作，不应 panic 也不报错
	if v.IsUnlocked(1) {
		t.Fatal("still locked")
	}
}

func TestQuickUnlock(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	res, err := v.Create(ctx, 1, "pw", "4321")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sess, err := v.QuickUnlock(ctx, 1, "4321", "")
	if err != nil {
		t.Fatalf("QuickUnlock failed: %v", err)
	}
	if sess.Address != res.Address {
		t.Errorf("address mismatch: %s != %s", sess.Address, res.Address)
	}

	v.Lock(1)
	if _, err := v.QuickUnlock(ctx, 1, "0000", ""); err == nil {
		t.Fatal("wrong PIN should fail")
	} else if _, ok := err.(*BadCredentialsError); !ok {
		t.Errorf("err = %v, want BadCredentialsError", err)
	}
}

func TestImportRoundTrip(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()

	mnemonic := "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	res1, err := v.Import(ctx, 1, mnemonic, "pw", "1234")
	if err != nil {
		t.Fatalf("Import mnemonic failed: %v", err)
	}
	res2, err := v.Import(ctx, 2, mnemonic, "pw", "1234")
	if err != nil {
		t.Fatalf("Import mnemonic failed: %v", err)
	}
	// 同一助记词派生同一地址
	if res1.Address != res2.Address {
		t.Errorf("same mnemonic derived different addresses: %s vs %s", res1.Address, res2.Address)
	}

	if _, err := v.Import(ctx, 3, "not a valid secret", "pw", "1234"); err != errno.ErrInvalidSecret {
		t.Errorf("bad material err = %v, want ErrInvalidSecret", err)
	}

	// 裸私钥导入后解锁，签名人地址要对得上
	raw := "0x0000000000000000000000000000000000000000000000000000000000000001"
	res3, err := v.Import(ctx, 4, raw, "pw", "1234")
	if err != nil {
		t.Fatalf("Import raw key failed: %v", err)
	}
	if _, err := v.Unlock(ctx, 4, "pw", ""); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	signer, err := v.GetSigner(4)
	if err != nil {
		t.Fatalf("GetSigner failed: %v", err)
	}
	if signer.Address() != res3.Address {
		t.Errorf("signer address %s != imported address %s", signer.Address(), res3.Address)
	}
}

func TestTwoFactorFlow(t *testing.T) {
	v, _ := newTestVault(t)
	ctx := context.Background()
	store := v.store.(*MemStore)

	if _, err := v.Create(ctx, 1, "pw", "1234"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	rec, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("Get record failed: %v", err)
	}

	code, err := totp.GenerateCode(rec.TwoFactorSecret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode failed: %v", err)
	}

	// 错误 token 不能启用
	if _, err := v.EnableTwoFactor(ctx, 1, "000000"); err != errno.ErrBadTOTP {
		t.Fatalf("enable with bad token = %v, want ErrBadTOTP", err)
	}
	backupCodes, err := v.EnableTwoFactor(ctx, 1, code)
	if err != nil {
		t.Fatalf("EnableTwoFactor failed: %v", err)
	}
	if len(backupCodes) != backupCodeCount {
		t.Fatalf("backup codes = %d, want %d", len(backupCodes), backupCodeCount)
	}

	// 无 token：要求二次验证，不建会话，不算失败
	if _, err := v.Unlock(ctx, 1, "pw", ""); err != errno.ErrNeedsSecondFactor {
		t.Fatalf("unlock without token = %v, want ErrNeedsSecondFactor", err)
	}
	if v.IsUnlocked(1) {
		t.Fatal("NeedsSecondFactor must not create a session")
	}

	// 有效 TOTP
	code, _ = totp.GenerateCode(rec.TwoFactorSecret, time.Now())
	if _, err := v.Unlock(ctx, 1, "pw", code); err != nil {
		t.Fatalf("unlock with TOTP failed: %v", err)
	}
	v.Lock(1)

	// 备份码只能用一次
	if _, err := v.Unlock(ctx, 1, "pw", backupCodes[0]); err != nil {
		t.Fatalf("unlock with backup code failed: %v", err)
	}
	v.Lock(1)
	if _, err := v.Unlock(ctx, 1, "pw", backupCodes[0]); err != errno.ErrBadTOTP {
		t.Errorf("reused backup code = %v, want ErrBadTOTP", err)
	}

	// 快速解锁同样要求二次验证
	if _, err := v.QuickUnlock(ctx, 1, "1234", ""); err != errno.ErrNeedsSecondFactor {
		t.Errorf("quick unlock without token = %v, want ErrNeedsSecondFactor", err)
	}
}
