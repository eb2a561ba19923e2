package cmd

import (
	"fmt"
	"os"
	"syscall"

	"trader-core/pkg/crypto_util"
	"trader-core/pkg/hdwallet"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newCmd 离线生成一个新钱包 (助记词 + 默认地址)
var newCmd = &cobra.Command{
	Use:   "new",
	Short: "生成新钱包 (助记词并可选加密保存)",
	Long:  `离线生成 BIP-39 助记词，派生 m/44'/60'/0'/0/0 地址。指定 -o 时用密码封存私钥为 JSON 文件。`,
	Run: func(cmd *cobra.Command, args []string) {
		mnemonic, err := hdwallet.GenerateMnemonic(128)
		if err != nil {
			fmt.Printf("生成助记词失败: %v\n", err)
			os.Exit(1)
		}

		wallet, err := hdwallet.NewFromMnemonic(mnemonic, "")
		if err != nil {
			fmt.Printf("派生钱包失败: %v\n", err)
			os.Exit(1)
		}
		keyBytes, err := wallet.EthereumKeyBytes(0)
		if err != nil {
			fmt.Printf("派生私钥失败: %v\n", err)
			os.Exit(1)
		}
		key, err := crypto.ToECDSA(keyBytes)
		if err != nil {
			fmt.Printf("私钥解析失败: %v\n", err)
			os.Exit(1)
		}
		addr := crypto.PubkeyToAddress(key.PublicKey)

		fmt.Println("---------------------------------------------------")
		fmt.Println("助记词 (请抄写在纸上并安全保管):")
		fmt.Println(mnemonic)
		fmt.Println("---------------------------------------------------")
		fmt.Printf("地址: %s\n", addr.Hex())

		outputFile, _ := cmd.Flags().GetString("output")
		if outputFile == "" {
			return
		}
		if _, err := os.Stat(outputFile); err == nil {
			fmt.Printf("错误: 文件 %s 已存在。请先删除或指定其他文件名。\n", outputFile)
			os.Exit(1)
		}

		password, err := readPasswordTwice()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		sealed, err := crypto_util.SealKey(keyBytes, password)
		if err != nil {
			fmt.Printf("加密失败: %v\n", err)
			os.Exit(1)
		}
		data, err := sealed.Marshal()
		if err != nil {
			fmt.Printf("序列化失败: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(outputFile, data, 0600); err != nil {
			fmt.Printf("保存文件失败: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("\n✅ 私钥已封存: %s\n", outputFile)
		fmt.Println("\n⚠️  警告: 请务必记住您的密码！如果丢失密码，您将无法恢复钱包。")
	},
}

func readPasswordTwice() (string, error) {
	fmt.Print("输入密码: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("\n读取密码失败: %w", err)
	}
	fmt.Println()

	fmt.Print("确认密码: ")
	byteConfirm, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", fmt.Errorf("\n读取密码失败: %w", err)
	}
	fmt.Println()

	if string(bytePassword) != string(byteConfirm) {
		return "", fmt.Errorf("两次输入的密码不一致！")
	}
	if len(bytePassword) < 6 {
		return "", fmt.Errorf("密码长度至少需要 6 位。")
	}
	return string(bytePassword), nil
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().StringP("output", "o", "", "封存私钥的输出文件 (留空则只打印)")
}
