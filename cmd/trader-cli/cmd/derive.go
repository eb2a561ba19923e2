package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"trader-core/pkg/hdwallet"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

// deriveCmd 从助记词恢复地址，用于核对导入结果
var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "从助记词派生 ETH 地址",
	Long:  `从标准输入读取 BIP-39 助记词，派生 m/44'/60'/0'/0/{index} 地址。不落盘、不联网。`,
	Run: func(cmd *cobra.Command, args []string) {
		index, _ := cmd.Flags().GetUint32("index")
		count, _ := cmd.Flags().GetUint32("count")
		if count == 0 {
			count = 1
		}

		fmt.Print("输入助记词: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Printf("读取输入失败: %v\n", err)
			os.Exit(1)
		}
		mnemonic := strings.TrimSpace(line)

		wallet, err := hdwallet.NewFromMnemonic(mnemonic, "")
		if err != nil {
			fmt.Printf("无效助记词: %v\n", err)
			os.Exit(1)
		}

		for i := index; i < index+count; i++ {
			keyBytes, err := wallet.EthereumKeyBytes(i)
			if err != nil {
				fmt.Printf("派生失败 (index=%d): %v\n", i, err)
				os.Exit(1)
			}
			key, err := crypto.ToECDSA(keyBytes)
			if err != nil {
				fmt.Printf("私钥解析失败 (index=%d): %v\n", i, err)
				os.Exit(1)
			}
			fmt.Printf("m/44'/60'/0'/0/%d  %s\n", i, crypto.PubkeyToAddress(key.PublicKey).Hex())
		}
	},
}

func init() {
	rootCmd.AddCommand(deriveCmd)
	deriveCmd.Flags().Uint32P("index", "i", 0, "起始派生索引")
	deriveCmd.Flags().Uint32P("count", "n", 1, "派生地址数量")
}
